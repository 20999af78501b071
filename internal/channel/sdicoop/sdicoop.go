// Package sdicoop submits invoice files to the exchange system over its
// direct HTTPS endpoint.
package sdicoop

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/beevik/etree"

	channeldomain "github.com/smallbiznis/scambio/internal/channel/domain"
	"github.com/smallbiznis/scambio/internal/observability/tracing"
	"github.com/smallbiznis/scambio/internal/signature"
)

const Code = "sdicoop"

type Factory struct {
	client *http.Client
}

func NewFactory() *Factory {
	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
	}
	return &Factory{
		client: tracing.WrapHTTPClient(&http.Client{Transport: transport}),
	}
}

func (f *Factory) Code() string { return Code }

func (f *Factory) NewChannel(cfg channeldomain.ChannelConfig) (channeldomain.Channel, error) {
	endpoint := strings.TrimSpace(cfg.Options["endpoint"])
	if endpoint == "" {
		return nil, channeldomain.ErrInvalidChannelConfig
	}
	return &Channel{
		client:   f.client,
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(cfg.Options["apiKey"]),
	}, nil
}

type Channel struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

func (c *Channel) Code() string { return Code }

func (c *Channel) Submit(ctx context.Context, req channeldomain.SubmitRequest) (*channeldomain.SubmitResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(req.Envelope))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType(req.Format))
	httpReq.Header.Set("X-SDI-FileName", req.FileName)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &channeldomain.SubmitError{Code: "transport_error", Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &channeldomain.SubmitError{Code: "transport_error", Message: err.Error(), Retryable: true}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, body)
	}
	return parseResponse(body)
}

func contentType(format string) string {
	if format == signature.FormatCAdES {
		return "application/pkcs7-mime"
	}
	return "application/xml"
}

func statusError(status int, body []byte) *channeldomain.SubmitError {
	retryable := status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError
	return &channeldomain.SubmitError{
		Code:      fmt.Sprintf("http_%d", status),
		Message:   strings.TrimSpace(string(body)),
		Retryable: retryable,
	}
}

// parseResponse reads the reception outcome. An IdentificativoSdI means
// the file was taken over; Errore elements mean a structural rejection.
func parseResponse(body []byte) (*channeldomain.SubmitResult, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, &channeldomain.SubmitError{Code: "malformed_response", Message: err.Error()}
	}
	root := doc.Root()
	if root == nil {
		return nil, &channeldomain.SubmitError{Code: "malformed_response", Message: "empty document"}
	}

	result := &channeldomain.SubmitResult{}
	if id := root.FindElement(".//IdentificativoSdI"); id != nil {
		result.ChannelID = strings.TrimSpace(id.Text())
	}
	for _, errEl := range root.FindElements(".//Errore") {
		if msg := errorText(errEl); msg != "" {
			result.Errors = append(result.Errors, msg)
		}
	}
	result.Accepted = len(result.Errors) == 0 && result.ChannelID != ""
	if !result.Accepted && len(result.Errors) == 0 {
		result.Errors = append(result.Errors, "missing_identifier")
	}
	return result, nil
}

func errorText(el *etree.Element) string {
	code := ""
	if c := el.SelectElement("Codice"); c != nil {
		code = strings.TrimSpace(c.Text())
	}
	desc := ""
	if d := el.SelectElement("Descrizione"); d != nil {
		desc = strings.TrimSpace(d.Text())
	}
	switch {
	case code != "" && desc != "":
		return code + " " + desc
	case code != "":
		return code
	case desc != "":
		return desc
	default:
		return strings.TrimSpace(el.Text())
	}
}
