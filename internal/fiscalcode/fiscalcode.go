package fiscalcode

import (
	"errors"
	"regexp"
	"strings"
)

// Kind discriminates the two Italian fiscal identifier families.
type Kind string

const (
	KindIndividual Kind = "individual" // 16-char Codice Fiscale
	KindCompany    Kind = "company"    // 11-digit Partita IVA
)

// PECRoutingCode is the reserved SDI routing code meaning
// "deliver via certified email instead of a channel endpoint".
const PECRoutingCode = "0000000"

var (
	ErrEmpty           = errors.New("empty_identifier")
	ErrInvalidLength   = errors.New("invalid_length")
	ErrInvalidFormat   = errors.New("invalid_format")
	ErrInvalidChecksum = errors.New("invalid_checksum")
	ErrInvalidCountry  = errors.New("invalid_country")
)

// FiscalIdentifier is an immutable, checksum-verified identifier.
// Zero value is invalid; construct via ValidateCompany or ValidateIndividual.
type FiscalIdentifier struct {
	kind    Kind
	country string
	value   string
}

func (f FiscalIdentifier) Kind() Kind      { return f.kind }
func (f FiscalIdentifier) Country() string { return f.country }

// Value returns the normalized identifier without country prefix.
func (f FiscalIdentifier) Value() string { return f.value }

// String renders the identifier the way FatturaPA embeds it:
// country prefix (companies only) followed by the normalized value.
func (f FiscalIdentifier) String() string {
	if f.kind == KindCompany && f.country != "" {
		return f.country + f.value
	}
	return f.value
}

func (f FiscalIdentifier) IsZero() bool { return f.kind == "" }

var (
	individualPattern = regexp.MustCompile(`^[A-Z]{6}[0-9]{2}[A-Z][0-9]{2}[A-Z][0-9]{3}[A-Z]$`)
	routingPattern    = regexp.MustCompile(`^[A-Z0-9]{7}$`)
	countryPattern    = regexp.MustCompile(`^[A-Z]{2}$`)
)

// ValidateCompany validates a Partita IVA. Separators (spaces, dots,
// dashes) are stripped and an optional two-letter country prefix is
// accepted; absent a prefix the identifier is assumed Italian.
func ValidateCompany(raw string) (FiscalIdentifier, error) {
	normalized := normalize(raw)
	if normalized == "" {
		return FiscalIdentifier{}, ErrEmpty
	}

	country := "IT"
	if len(normalized) == 13 && countryPattern.MatchString(normalized[:2]) {
		country = normalized[:2]
		normalized = normalized[2:]
	}
	if len(normalized) != 11 {
		return FiscalIdentifier{}, ErrInvalidLength
	}
	for _, r := range normalized {
		if r < '0' || r > '9' {
			return FiscalIdentifier{}, ErrInvalidFormat
		}
	}
	if companyCheckDigit(normalized[:10]) != int(normalized[10]-'0') {
		return FiscalIdentifier{}, ErrInvalidChecksum
	}

	return FiscalIdentifier{kind: KindCompany, country: country, value: normalized}, nil
}

// companyCheckDigit computes the check digit over the first ten digits:
// even 0-indexed positions count as-is, odd positions are doubled with
// digit-sum reduction, check = (10 - sum mod 10) mod 10.
func companyCheckDigit(digits string) int {
	sum := 0
	for i, r := range digits {
		d := int(r - '0')
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return (10 - sum%10) % 10
}

// oddValues maps a character to its checksum weight when it occupies a
// 1-based odd position of a Codice Fiscale.
var oddValues = map[byte]int{
	'0': 1, '1': 0, '2': 5, '3': 7, '4': 9, '5': 13, '6': 15, '7': 17, '8': 19, '9': 21,
	'A': 1, 'B': 0, 'C': 5, 'D': 7, 'E': 9, 'F': 13, 'G': 15, 'H': 17, 'I': 19, 'J': 21,
	'K': 2, 'L': 4, 'M': 18, 'N': 20, 'O': 11, 'P': 3, 'Q': 6, 'R': 8, 'S': 12, 'T': 14,
	'U': 16, 'V': 10, 'W': 22, 'X': 25, 'Y': 24, 'Z': 23,
}

// ValidateIndividual validates a 16-character Codice Fiscale, including
// its modulo-26 control letter.
func ValidateIndividual(raw string) (FiscalIdentifier, error) {
	normalized := normalize(raw)
	if normalized == "" {
		return FiscalIdentifier{}, ErrEmpty
	}
	if len(normalized) != 16 {
		return FiscalIdentifier{}, ErrInvalidLength
	}
	if !individualPattern.MatchString(normalized) {
		return FiscalIdentifier{}, ErrInvalidFormat
	}
	if individualCheckLetter(normalized[:15]) != normalized[15] {
		return FiscalIdentifier{}, ErrInvalidChecksum
	}

	return FiscalIdentifier{kind: KindIndividual, country: "IT", value: normalized}, nil
}

func individualCheckLetter(body string) byte {
	sum := 0
	for i := 0; i < len(body); i++ {
		c := body[i]
		// position here is 1-based in the official algorithm
		if (i+1)%2 == 1 {
			sum += oddValues[c]
		} else {
			sum += evenValue(c)
		}
	}
	return byte('A' + sum%26)
}

func evenValue(c byte) int {
	if c >= '0' && c <= '9' {
		return int(c - '0')
	}
	return int(c - 'A')
}

// ValidateRoutingCode reports whether raw is a well-formed 7-character
// SDI routing code. PECRoutingCode is valid and means certified-email
// delivery.
func ValidateRoutingCode(raw string) bool {
	return routingPattern.MatchString(strings.ToUpper(strings.TrimSpace(raw)))
}

func normalize(raw string) string {
	replacer := strings.NewReplacer(" ", "", ".", "", "-", "")
	return strings.ToUpper(replacer.Replace(strings.TrimSpace(raw)))
}
