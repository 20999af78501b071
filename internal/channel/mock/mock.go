// Package mock is a scriptable stand-in channel for development and
// tests. The script option decides how submissions are answered.
package mock

import (
	"context"
	"fmt"
	"hash/crc32"
	"strconv"
	"strings"
	"sync"

	channeldomain "github.com/smallbiznis/scambio/internal/channel/domain"
)

const Code = "mock"

const (
	ScriptAccept      = "accept"
	ScriptReject      = "reject"
	ScriptUnavailable = "unavailable"
	ScriptFlaky       = "flaky"
)

// Factory keeps per-file attempt counts so the flaky script can fail a
// submission a fixed number of times before accepting it.
type Factory struct {
	mu       sync.Mutex
	attempts map[string]int
}

func NewFactory() *Factory {
	return &Factory{attempts: map[string]int{}}
}

func (f *Factory) Code() string { return Code }

func (f *Factory) NewChannel(cfg channeldomain.ChannelConfig) (channeldomain.Channel, error) {
	script := strings.ToLower(strings.TrimSpace(cfg.Options["script"]))
	if script == "" {
		script = ScriptAccept
	}
	switch script {
	case ScriptAccept, ScriptReject, ScriptUnavailable, ScriptFlaky:
	default:
		return nil, channeldomain.ErrInvalidChannelConfig
	}

	flakyFailures := 2
	if raw := strings.TrimSpace(cfg.Options["flakyFailures"]); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, channeldomain.ErrInvalidChannelConfig
		}
		flakyFailures = n
	}

	return &Channel{factory: f, script: script, flakyFailures: flakyFailures}, nil
}

func (f *Factory) recordAttempt(fileName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[fileName]++
	return f.attempts[fileName]
}

type Channel struct {
	factory       *Factory
	script        string
	flakyFailures int
}

func (c *Channel) Code() string { return Code }

func (c *Channel) Submit(_ context.Context, req channeldomain.SubmitRequest) (*channeldomain.SubmitResult, error) {
	switch c.script {
	case ScriptReject:
		return &channeldomain.SubmitResult{
			Errors: []string{"00200 File non conforme al formato"},
		}, nil
	case ScriptUnavailable:
		return nil, &channeldomain.SubmitError{
			Code:      "mock_unavailable",
			Message:   "scripted transport failure",
			Retryable: true,
		}
	case ScriptFlaky:
		if c.factory.recordAttempt(req.FileName) <= c.flakyFailures {
			return nil, &channeldomain.SubmitError{
				Code:      "mock_unavailable",
				Message:   "scripted transport failure",
				Retryable: true,
			}
		}
	}
	return &channeldomain.SubmitResult{
		Accepted:  true,
		ChannelID: fmt.Sprintf("MOCK%08X", crc32.ChecksumIEEE([]byte(req.FileName))),
	}, nil
}
