// Package intermediary submits invoice files through an accredited
// intermediary's REST API instead of talking to the exchange system
// directly.
package intermediary

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	channeldomain "github.com/smallbiznis/scambio/internal/channel/domain"
	"github.com/smallbiznis/scambio/internal/observability/tracing"
)

const Code = "intermediary"

type Factory struct {
	client *http.Client
}

func NewFactory() *Factory {
	transport := &http.Transport{
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
	apiKey := strings.TrimSpace(cfg.Options["apiKey"])
	if endpoint == "" || apiKey == "" {
		return nil, channeldomain.ErrInvalidChannelConfig
	}
	return &Channel{
		client:   f.client,
		endpoint: endpoint,
		apiKey:   apiKey,
	}, nil
}

type Channel struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

func (c *Channel) Code() string { return Code }

type submitPayload struct {
	FileName        string `json:"file_name"`
	Content         string `json:"content"`
	SignatureFormat string `json:"signature_format"`
}

type submitResponse struct {
	Accepted bool     `json:"accepted"`
	SDIID    string   `json:"sdi_id"`
	Errors   []string `json:"errors"`
}

func (c *Channel) Submit(ctx context.Context, req channeldomain.SubmitRequest) (*channeldomain.SubmitResult, error) {
	payload, err := json.Marshal(submitPayload{
		FileName:        req.FileName,
		Content:         base64.StdEncoding.EncodeToString(req.Envelope),
		SignatureFormat: req.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &channeldomain.SubmitError{Code: "transport_error", Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &channeldomain.SubmitError{Code: "transport_error", Message: err.Error(), Retryable: true}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, statusError(resp.StatusCode, body)
	}

	var parsed submitResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &channeldomain.SubmitError{Code: "malformed_response", Message: err.Error()}
	}
	result := &channeldomain.SubmitResult{
		Accepted:  parsed.Accepted,
		ChannelID: strings.TrimSpace(parsed.SDIID),
		Errors:    parsed.Errors,
	}
	if !result.Accepted && len(result.Errors) == 0 {
		result.Errors = append(result.Errors, "rejected_without_detail")
	}
	return result, nil
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
