package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	channeldomain "github.com/smallbiznis/scambio/internal/channel/domain"
)

func newChannel(t *testing.T, options map[string]string) channeldomain.Channel {
	t.Helper()
	ch, err := NewFactory().NewChannel(channeldomain.ChannelConfig{Code: Code, Options: options})
	require.NoError(t, err)
	return ch
}

func TestMockChannel_AcceptByDefault(t *testing.T) {
	ch := newChannel(t, nil)

	result, err := ch.Submit(context.Background(), channeldomain.SubmitRequest{FileName: "IT01234567897_00001.xml.p7m"})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.NotEmpty(t, result.ChannelID)

	// Same file name yields the same identifier.
	again, err := ch.Submit(context.Background(), channeldomain.SubmitRequest{FileName: "IT01234567897_00001.xml.p7m"})
	require.NoError(t, err)
	assert.Equal(t, result.ChannelID, again.ChannelID)
}

func TestMockChannel_Reject(t *testing.T) {
	ch := newChannel(t, map[string]string{"script": ScriptReject})

	result, err := ch.Submit(context.Background(), channeldomain.SubmitRequest{FileName: "IT01234567897_00002.xml.p7m"})
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.NotEmpty(t, result.Errors)
}

func TestMockChannel_Unavailable(t *testing.T) {
	ch := newChannel(t, map[string]string{"script": ScriptUnavailable})

	_, err := ch.Submit(context.Background(), channeldomain.SubmitRequest{FileName: "IT01234567897_00003.xml.p7m"})
	require.Error(t, err)
	assert.True(t, channeldomain.IsRetryable(err))
}

func TestMockChannel_FlakyRecovers(t *testing.T) {
	ch := newChannel(t, map[string]string{"script": ScriptFlaky, "flakyFailures": "1"})
	req := channeldomain.SubmitRequest{FileName: "IT01234567897_00004.xml.p7m"}

	_, err := ch.Submit(context.Background(), req)
	require.Error(t, err)
	assert.True(t, channeldomain.IsRetryable(err))

	result, err := ch.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Accepted)
}

func TestMockChannel_FlakyCountsPerFile(t *testing.T) {
	factory := NewFactory()
	ch, err := factory.NewChannel(channeldomain.ChannelConfig{
		Code:    Code,
		Options: map[string]string{"script": ScriptFlaky, "flakyFailures": "1"},
	})
	require.NoError(t, err)

	_, err = ch.Submit(context.Background(), channeldomain.SubmitRequest{FileName: "a.xml.p7m"})
	require.Error(t, err)

	// A different file starts its own failure budget.
	_, err = ch.Submit(context.Background(), channeldomain.SubmitRequest{FileName: "b.xml.p7m"})
	require.Error(t, err)

	result, err := ch.Submit(context.Background(), channeldomain.SubmitRequest{FileName: "a.xml.p7m"})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
}

func TestMockChannel_InvalidScript(t *testing.T) {
	_, err := NewFactory().NewChannel(channeldomain.ChannelConfig{
		Code:    Code,
		Options: map[string]string{"script": "explode"},
	})
	require.ErrorIs(t, err, channeldomain.ErrInvalidChannelConfig)

	_, err = NewFactory().NewChannel(channeldomain.ChannelConfig{
		Code:    Code,
		Options: map[string]string{"script": ScriptFlaky, "flakyFailures": "-1"},
	})
	require.ErrorIs(t, err, channeldomain.ErrInvalidChannelConfig)
}
