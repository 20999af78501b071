package fiscalcode

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCompany_KnownIdentifiers(t *testing.T) {
	id, err := ValidateCompany("01234567897")
	require.NoError(t, err)
	assert.Equal(t, KindCompany, id.Kind())
	assert.Equal(t, "IT", id.Country())
	assert.Equal(t, "01234567897", id.Value())
	assert.Equal(t, "IT01234567897", id.String())

	id, err = ValidateCompany("IT 07643520567")
	require.NoError(t, err)
	assert.Equal(t, "07643520567", id.Value())

	_, err = ValidateCompany("01234567890")
	assert.ErrorIs(t, err, ErrInvalidChecksum)

	_, err = ValidateCompany("0123456789")
	assert.ErrorIs(t, err, ErrInvalidLength)

	_, err = ValidateCompany("0123456789X")
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = ValidateCompany("   ")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestValidateCompany_ChecksumProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		body := make([]byte, 10)
		for j := range body {
			body[j] = byte('0' + rng.Intn(10))
		}
		check := companyCheckDigit(string(body))

		valid := fmt.Sprintf("%s%d", body, check)
		_, err := ValidateCompany(valid)
		assert.NoErrorf(t, err, "generated identifier %s must validate", valid)

		wrong := fmt.Sprintf("%s%d", body, (check+1+rng.Intn(9))%10)
		if wrong != valid {
			_, err = ValidateCompany(wrong)
			assert.ErrorIsf(t, err, ErrInvalidChecksum, "identifier %s must fail", wrong)
		}
	}
}

func TestValidateIndividual_KnownIdentifier(t *testing.T) {
	id, err := ValidateIndividual("RSSMRA85T10A562S")
	require.NoError(t, err)
	assert.Equal(t, KindIndividual, id.Kind())
	assert.Equal(t, "RSSMRA85T10A562S", id.Value())
	assert.Equal(t, "RSSMRA85T10A562S", id.String())

	id, err = ValidateIndividual("rss mra 85t10 a562s")
	require.NoError(t, err)
	assert.Equal(t, "RSSMRA85T10A562S", id.Value())
}

func TestValidateIndividual_Rejections(t *testing.T) {
	_, err := ValidateIndividual("")
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = ValidateIndividual("RSSMRA85T10A562")
	assert.ErrorIs(t, err, ErrInvalidLength)

	_, err = ValidateIndividual("RSSMR485T10A562S")
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = ValidateIndividual("RSSMRA85T10A562T")
	assert.ErrorIs(t, err, ErrInvalidChecksum)
}

// Sweeping every possible control letter proves exactly one of the 26
// validates, which is the checksum's whole point.
func TestValidateIndividual_ControlLetterSweep(t *testing.T) {
	body := "RSSMRA85T10A562"
	expected := individualCheckLetter(body)

	validCount := 0
	for c := byte('A'); c <= 'Z'; c++ {
		_, err := ValidateIndividual(body + string(c))
		if c == expected {
			assert.NoError(t, err)
			validCount++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidChecksum)
	}
	assert.Equal(t, 1, validCount)
}

func TestValidateIndividual_RoundTripProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	letters := "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	months := "ABCDEHLMPRST"

	for i := 0; i < 200; i++ {
		body := make([]byte, 15)
		for j := 0; j < 6; j++ {
			body[j] = letters[rng.Intn(len(letters))]
		}
		body[6] = byte('0' + rng.Intn(10))
		body[7] = byte('0' + rng.Intn(10))
		body[8] = months[rng.Intn(len(months))]
		day := 1 + rng.Intn(28)
		if rng.Intn(2) == 1 {
			day += 40
		}
		body[9] = byte('0' + day/10)
		body[10] = byte('0' + day%10)
		body[11] = letters[rng.Intn(len(letters))]
		for j := 12; j < 15; j++ {
			body[j] = byte('0' + rng.Intn(10))
		}

		code := string(body) + string(individualCheckLetter(string(body)))
		_, err := ValidateIndividual(code)
		assert.NoErrorf(t, err, "generated code %s must validate", code)
	}
}

func TestParsePersonalData(t *testing.T) {
	ref := time.Date(2026, time.August, 23, 0, 0, 0, 0, time.UTC)

	id, err := ValidateIndividual("RSSMRA85T10A562S")
	require.NoError(t, err)

	data, err := ParsePersonalData(id, ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(1985, time.December, 10, 0, 0, 0, 0, time.UTC), data.BirthDate)
	assert.Equal(t, GenderMale, data.Gender)
	assert.Equal(t, "A562", data.BirthplaceCode)
}

func TestParsePersonalData_FemaleOffset(t *testing.T) {
	ref := time.Date(2026, time.August, 23, 0, 0, 0, 0, time.UTC)

	body := "RSSMRA90A45F205"
	code := body + string(individualCheckLetter(body))
	id, err := ValidateIndividual(code)
	require.NoError(t, err)

	data, err := ParsePersonalData(id, ref)
	require.NoError(t, err)
	assert.Equal(t, GenderFemale, data.Gender)
	assert.Equal(t, time.Date(1990, time.January, 5, 0, 0, 0, 0, time.UTC), data.BirthDate)
	assert.Equal(t, "F205", data.BirthplaceCode)
}

func TestParsePersonalData_RejectsCompany(t *testing.T) {
	id, err := ValidateCompany("01234567897")
	require.NoError(t, err)

	_, err = ParsePersonalData(id, time.Now())
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestValidateRoutingCode(t *testing.T) {
	assert.True(t, ValidateRoutingCode("0000000"))
	assert.True(t, ValidateRoutingCode("ABC1234"))
	assert.True(t, ValidateRoutingCode(" xyz9876 "))
	assert.False(t, ValidateRoutingCode("000000"))
	assert.False(t, ValidateRoutingCode("00000000"))
	assert.False(t, ValidateRoutingCode("ABC-123"))
	assert.False(t, ValidateRoutingCode(""))
}
