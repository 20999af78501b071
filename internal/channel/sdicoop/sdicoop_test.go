package sdicoop

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	channeldomain "github.com/smallbiznis/scambio/internal/channel/domain"
	"github.com/smallbiznis/scambio/internal/signature"
)

func newChannel(t *testing.T, endpoint, apiKey string) channeldomain.Channel {
	t.Helper()
	ch, err := NewFactory().NewChannel(channeldomain.ChannelConfig{
		Code:    Code,
		Options: map[string]string{"endpoint": endpoint, "apiKey": apiKey},
	})
	require.NoError(t, err)
	return ch
}

func TestSubmit_Accepted(t *testing.T) {
	var gotContentType, gotFileName, gotAuth string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotFileName = r.Header.Get("X-SDI-FileName")
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`<RispostaRiceviFile><IdentificativoSdI>24680</IdentificativoSdI><DataOraRicezione>2026-08-23T10:00:00Z</DataOraRicezione></RispostaRiceviFile>`))
	}))
	defer server.Close()

	ch := newChannel(t, server.URL, "secret-key")
	result, err := ch.Submit(context.Background(), channeldomain.SubmitRequest{
		FileName: "IT01234567897_00001.xml.p7m",
		Envelope: []byte("signed envelope"),
		Format:   signature.FormatCAdES,
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, "24680", result.ChannelID)

	assert.Equal(t, "application/pkcs7-mime", gotContentType)
	assert.Equal(t, "IT01234567897_00001.xml.p7m", gotFileName)
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, []byte("signed envelope"), gotBody)
}

func TestSubmit_XMLContentTypeForXAdES(t *testing.T) {
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte(`<RispostaRiceviFile><IdentificativoSdI>1</IdentificativoSdI></RispostaRiceviFile>`))
	}))
	defer server.Close()

	ch := newChannel(t, server.URL, "")
	_, err := ch.Submit(context.Background(), channeldomain.SubmitRequest{
		FileName: "IT01234567897_00001.xml",
		Envelope: []byte("<signed/>"),
		Format:   signature.FormatXAdES,
	})
	require.NoError(t, err)
	assert.Equal(t, "application/xml", gotContentType)
}

func TestSubmit_StructuralRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<RispostaRiceviFile><Errore><Codice>00200</Codice><Descrizione>File non conforme al formato</Descrizione></Errore></RispostaRiceviFile>`))
	}))
	defer server.Close()

	ch := newChannel(t, server.URL, "")
	result, err := ch.Submit(context.Background(), channeldomain.SubmitRequest{FileName: "f.xml.p7m"})
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, []string{"00200 File non conforme al formato"}, result.Errors)
}

func TestSubmit_ServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance window", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ch := newChannel(t, server.URL, "")
	_, err := ch.Submit(context.Background(), channeldomain.SubmitRequest{FileName: "f.xml.p7m"})
	require.Error(t, err)
	assert.True(t, channeldomain.IsRetryable(err))
}

func TestSubmit_ClientErrorIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown sender", http.StatusBadRequest)
	}))
	defer server.Close()

	ch := newChannel(t, server.URL, "")
	_, err := ch.Submit(context.Background(), channeldomain.SubmitRequest{FileName: "f.xml.p7m"})
	require.Error(t, err)
	assert.False(t, channeldomain.IsRetryable(err))
}

func TestSubmit_ConnectionFailureIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	ch := newChannel(t, server.URL, "")
	_, err := ch.Submit(context.Background(), channeldomain.SubmitRequest{FileName: "f.xml.p7m"})
	require.Error(t, err)
	assert.True(t, channeldomain.IsRetryable(err))
}

func TestNewChannel_RequiresEndpoint(t *testing.T) {
	_, err := NewFactory().NewChannel(channeldomain.ChannelConfig{Code: Code})
	require.ErrorIs(t, err, channeldomain.ErrInvalidChannelConfig)
}
