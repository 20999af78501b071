package document

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"

	"github.com/smallbiznis/scambio/internal/clock"
)

// Transmission filenames follow <country><vat>_<progressivo>.xml, with
// a signature extension appended once the envelope is signed.

const (
	progressivoLength = 5
	// 36^5: the token space of a 5-character base-36 progressivo.
	progressivoSpace = 60466176
	// Seconds are counted from 2020-01-01T00:00:00Z to keep tokens short.
	progressivoEpoch = 1577836800
)

// BaseFilename renders the unsigned transmission filename.
func BaseFilename(countryCode, supplierVAT, progressivo string) string {
	return fmt.Sprintf("%s%s_%s.xml", strings.ToUpper(countryCode), supplierVAT, progressivo)
}

// SignedFilename appends the envelope extension for the signature format.
func SignedFilename(base, format string) string {
	if strings.EqualFold(format, "CADES") {
		return base + ".p7m"
	}
	return base
}

// EncodeProgressivo renders a counter value as an upper-case base-36
// token, zero-padded to five characters.
func EncodeProgressivo(value int64) string {
	if value < 0 {
		value = -value
	}
	encoded := strings.ToUpper(strconv.FormatInt(value%progressivoSpace, 36))
	if len(encoded) < progressivoLength {
		encoded = strings.Repeat("0", progressivoLength-len(encoded)) + encoded
	}
	return encoded
}

// ProgressivoSource yields progressive-send tokens. Tokens must never
// repeat for the same organization; the persistent implementation
// backs this with a counter row, the in-memory one with a clock.
type ProgressivoSource interface {
	Next(ctx context.Context, orgID snowflake.ID) (string, error)
}

// MemoryProgressivoSource derives monotonically increasing tokens from
// the clock, serialized under one mutex per process.
type MemoryProgressivoSource struct {
	mu   sync.Mutex
	clk  clock.Clock
	last map[snowflake.ID]int64
}

func NewMemoryProgressivoSource(clk clock.Clock) *MemoryProgressivoSource {
	return &MemoryProgressivoSource{
		clk:  clk,
		last: make(map[snowflake.ID]int64),
	}
}

func (s *MemoryProgressivoSource) Next(_ context.Context, orgID snowflake.ID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := s.clk.Now().Unix() - progressivoEpoch
	if candidate <= s.last[orgID] {
		candidate = s.last[orgID] + 1
	}
	s.last[orgID] = candidate

	return EncodeProgressivo(candidate), nil
}
