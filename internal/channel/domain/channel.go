// Package domain defines the transmission-channel capability: adapters
// carry signed envelopes to the exchange system and report whether the
// file was taken over.
package domain

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrChannelNotFound      = errors.New("channel_not_found")
	ErrInvalidChannelConfig = errors.New("invalid_channel_config")
)

// SubmitRequest carries one signed envelope to a channel adapter.
type SubmitRequest struct {
	TransmissionID snowflake.ID
	OrgID          snowflake.ID
	FileName       string
	Envelope       []byte
	Format         string
}

// SubmitResult is the channel's synchronous answer. Accepted means the
// file entered the exchange pipeline; lifecycle outcomes arrive later as
// notifications. A rejection carries the channel's structural errors and
// is never retried.
type SubmitResult struct {
	Accepted  bool
	ChannelID string
	Errors    []string
}

type Channel interface {
	Code() string
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
}

// ChannelConfig carries the per-channel options block from the SDI
// configuration file.
type ChannelConfig struct {
	Code    string
	Options map[string]string
}

type ChannelFactory interface {
	Code() string
	NewChannel(cfg ChannelConfig) (Channel, error)
}

// SubmitError is a failed delivery attempt. Retryable errors are
// transport-level; the caller may try again after a backoff.
type SubmitError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *SubmitError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsRetryable classifies a submission error. Adapters wrap transport
// failures in SubmitError; bare network and deadline errors from lower
// layers count as retryable too.
func IsRetryable(err error) bool {
	var submitErr *SubmitError
	if errors.As(err, &submitErr) {
		return submitErr.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
