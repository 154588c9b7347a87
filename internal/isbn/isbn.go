// Package isbn implements parsing, validation, and 10<->13 conversion for
// book identifiers, per spec §4.1. This is the single source of identity
// threaded through the rest of the search pipeline.
package isbn

import (
	"strings"
)

// ISBN10 and ISBN13 are branded string types so the two forms can't be
// implicitly interchanged at call sites.
type ISBN10 string
type ISBN13 string

// Result is the outcome of a successful Parse.
type Result struct {
	ISBN13     ISBN13
	ISBN10     ISBN10 // empty unless the 13-form begins with 978
	Hyphenated string
}

// ParseError names the specific rule that failed, in a message safe to
// show to an API caller (it never echoes more than the input already
// gave them).
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return e.Reason }

func fail(reason string) (Result, error) {
	return Result{}, &ParseError{Reason: reason}
}

// Parse strips all non [0-9Xx] characters from raw and validates it as an
// ISBN-10 or ISBN-13, returning the normalized ISBN-13 form (and the
// ISBN-10 form, when derivable).
func Parse(raw string) (Result, error) {
	digits := clean(raw)

	switch len(digits) {
	case 10:
		return parse10(digits)
	case 13:
		return parse13(digits)
	default:
		return fail("invalid length: must be 10 or 13 characters after removing punctuation")
	}
}

func clean(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'X' || r == 'x':
			b.WriteRune('X')
		}
	}
	return b.String()
}

func parse10(digits string) (Result, error) {
	for i := 0; i < 9; i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return fail("invalid character set: first 9 characters of an ISBN-10 must be digits")
		}
	}
	last := digits[9]
	if !(last >= '0' && last <= '9') && last != 'X' {
		return fail("invalid character set: ISBN-10 check character must be a digit or X")
	}

	if checkDigit10(digits[:9]) != last {
		return fail("check digit mismatch for ISBN-10")
	}

	isbn10 := ISBN10(digits)
	isbn13, err := ToISBN13(isbn10)
	if err != nil {
		return fail("unable to derive ISBN-13 from ISBN-10")
	}

	return Result{
		ISBN13:     isbn13,
		ISBN10:     isbn10,
		Hyphenated: string(isbn13),
	}, nil
}

func parse13(digits string) (Result, error) {
	for i := 0; i < 12; i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return fail("invalid character set: ISBN-13 must be all digits")
		}
	}
	// The 13th position must itself be a digit: unlike ISBN-10, ISBN-13 has
	// no 'X' check character, so an 'X' here is a check digit failure.
	if digits[12] < '0' || digits[12] > '9' {
		return fail("check digit: ISBN-13 has no valid 'X' check digit")
	}

	if checkDigit13(digits[:12]) != digits[12] {
		return fail("check digit mismatch for ISBN-13")
	}

	result := Result{ISBN13: ISBN13(digits), Hyphenated: digits}
	if strings.HasPrefix(digits, "978") {
		if isbn10, err := ToISBN10(ISBN13(digits)); err == nil {
			result.ISBN10 = isbn10
		}
	}
	return result, nil
}

// checkDigit10 computes the ISBN-10 check character (mod-11 weighted sum,
// weights 10..2, remainder mapped to '0'-'9' or 'X' for 10).
func checkDigit10(first9 string) byte {
	sum := 0
	for i := 0; i < 9; i++ {
		sum += int(first9[i]-'0') * (10 - i)
	}
	remainder := (11 - sum%11) % 11
	if remainder == 10 {
		return 'X'
	}
	return byte('0' + remainder)
}

// CheckDigit13 computes the ISBN-13 check digit (mod-10 weighted sum,
// alternating weights 1,3).
func CheckDigit13(first12 string) (byte, error) {
	if len(first12) != 12 {
		return 0, &ParseError{Reason: "check digit input must be 12 digits"}
	}
	for i := 0; i < 12; i++ {
		if first12[i] < '0' || first12[i] > '9' {
			return 0, &ParseError{Reason: "check digit input must be all digits"}
		}
	}
	return checkDigit13(first12), nil
}

func checkDigit13(first12 string) byte {
	sum := 0
	for i := 0; i < 12; i++ {
		weight := 1
		if i%2 == 1 {
			weight = 3
		}
		sum += int(first12[i]-'0') * weight
	}
	remainder := (10 - sum%10) % 10
	return byte('0' + remainder)
}

// ToISBN13 converts an ISBN-10 to its ISBN-13 equivalent by prepending 978
// and recomputing the mod-10 check digit.
func ToISBN13(i10 ISBN10) (ISBN13, error) {
	s := string(i10)
	if len(s) != 10 {
		return "", &ParseError{Reason: "ISBN-10 must be 10 characters"}
	}
	first12 := "978" + s[:9]
	check := checkDigit13(first12)
	return ISBN13(first12 + string(check)), nil
}

// ToISBN10 converts a 978-prefixed ISBN-13 back to ISBN-10.
func ToISBN10(i13 ISBN13) (ISBN10, error) {
	s := string(i13)
	if len(s) != 13 {
		return "", &ParseError{Reason: "ISBN-13 must be 13 characters"}
	}
	if !strings.HasPrefix(s, "978") {
		return "", &ParseError{Reason: "only 978-prefixed ISBN-13s can be converted to ISBN-10"}
	}
	first9 := s[3:12]
	check := checkDigit10(first9)
	return ISBN10(first9 + string(check)), nil
}

// MustParse is a test/config convenience wrapper around Parse.
func MustParse(raw string) Result {
	r, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return r
}
