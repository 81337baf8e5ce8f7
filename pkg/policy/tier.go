package policy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"agegate/pkg/domain"
)

// BirthDateLayout is the only accepted wire format for dates of birth.
const BirthDateLayout = "2006-01-02"

// maxAgeYears bounds how far in the past a birth date may lie.
const maxAgeYears = 120

// ErrInvalidDateOfBirth marks a malformed or out-of-range birth date.
var ErrInvalidDateOfBirth = errors.New("invalid date of birth")

// ParseBirthDate parses an ISO birth date string.
func ParseBirthDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	t, err := time.Parse(BirthDateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: expected %s", ErrInvalidDateOfBirth, BirthDateLayout)
	}
	return t, nil
}

// Classify derives the age tier from a birth date. The caller supplies
// today explicitly so the computation stays deterministic and testable.
func Classify(birthDate, today time.Time) (domain.Tier, error) {
	age, err := ageYears(birthDate, today)
	if err != nil {
		return "", err
	}
	switch {
	case age < 13:
		return domain.TierChild, nil
	case age < 18:
		return domain.TierTeen, nil
	default:
		return domain.TierAdult, nil
	}
}

// ageYears computes age in whole years, rejecting future dates and dates
// more than maxAgeYears in the past.
func ageYears(birthDate, today time.Time) (int, error) {
	by, bm, bd := birthDate.Date()
	ty, tm, td := today.Date()
	age := ty - by
	if tm < bm || (tm == bm && td < bd) {
		age--
	}
	if age < 0 {
		return 0, fmt.Errorf("%w: date is in the future", ErrInvalidDateOfBirth)
	}
	if age > maxAgeYears {
		return 0, fmt.Errorf("%w: more than %d years ago", ErrInvalidDateOfBirth, maxAgeYears)
	}
	return age, nil
}
