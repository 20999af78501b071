package fiscalcode

import (
	"errors"
	"time"
)

type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

var (
	ErrInvalidBirthMonth = errors.New("invalid_birth_month")
	ErrInvalidBirthDay   = errors.New("invalid_birth_day")
)

// PersonalData is the demographic block embedded in positions 7-15 of a
// Codice Fiscale.
type PersonalData struct {
	BirthDate      time.Time
	Gender         Gender
	BirthplaceCode string
}

// monthLetters maps the single month letter to its 1-12 month number.
var monthLetters = map[byte]time.Month{
	'A': time.January, 'B': time.February, 'C': time.March, 'D': time.April,
	'E': time.May, 'H': time.June, 'L': time.July, 'M': time.August,
	'P': time.September, 'R': time.October, 'S': time.November, 'T': time.December,
}

// ParsePersonalData extracts birth date, gender, and the cadastral
// birthplace code from a validated individual identifier. Women carry a
// +40 offset on the day of birth. The two-digit year resolves against
// ref: years greater than ref's are read as the previous century.
func ParsePersonalData(id FiscalIdentifier, ref time.Time) (*PersonalData, error) {
	if id.Kind() != KindIndividual {
		return nil, ErrInvalidFormat
	}
	code := id.Value()

	yy := int(code[6]-'0')*10 + int(code[7]-'0')
	month, ok := monthLetters[code[8]]
	if !ok {
		return nil, ErrInvalidBirthMonth
	}

	day := int(code[9]-'0')*10 + int(code[10]-'0')
	gender := GenderMale
	if day > 40 {
		gender = GenderFemale
		day -= 40
	}
	if day < 1 || day > 31 {
		return nil, ErrInvalidBirthDay
	}

	century := ref.Year() - ref.Year()%100
	year := century + yy
	if year > ref.Year() {
		year -= 100
	}

	birth := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if birth.Day() != day || birth.Month() != month {
		return nil, ErrInvalidBirthDay
	}

	return &PersonalData{
		BirthDate:      birth,
		Gender:         gender,
		BirthplaceCode: code[11:15],
	}, nil
}
