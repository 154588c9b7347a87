package isbn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseISBN13(t *testing.T) {
	r, err := Parse("9780306406157")
	require.NoError(t, err)
	assert.Equal(t, ISBN13("9780306406157"), r.ISBN13)
	assert.Equal(t, ISBN10("0306406152"), r.ISBN10)
}

func TestParseISBN10(t *testing.T) {
	r, err := Parse("0306406152")
	require.NoError(t, err)
	assert.Equal(t, ISBN13("9780306406157"), r.ISBN13)
	assert.Equal(t, ISBN10("0306406152"), r.ISBN10)
}

func TestParseISBN10WithXCheckDigit(t *testing.T) {
	// 155860832X is a well-known ISBN-10 with an X check digit.
	r, err := Parse("155860832X")
	require.NoError(t, err)
	assert.Equal(t, ISBN10("155860832X"), r.ISBN10)
	assert.True(t, len(r.ISBN13) == 13 && string(r.ISBN13)[:12] == "978155860832")
}

func TestParseRejectsXInISBN13Form(t *testing.T) {
	_, err := Parse("978-0-306-40615-X")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check digit")
}

func TestParseRejectsBadCheckDigit(t *testing.T) {
	_, err := Parse("9780306406158")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check digit")
}

func TestParseRejectsBadLength(t *testing.T) {
	_, err := Parse("12345")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "length")
}

func TestParseStripsPunctuation(t *testing.T) {
	r, err := Parse("978-0-306-40615-7")
	require.NoError(t, err)
	assert.Equal(t, ISBN13("9780306406157"), r.ISBN13)
}

// Property 1: parsing is idempotent on the normalized form.
func TestParseIdempotent(t *testing.T) {
	inputs := []string{"9780306406157", "0306406152", "978-0-306-40615-7"}
	for _, in := range inputs {
		first, err := Parse(in)
		require.NoError(t, err)
		second, err := Parse(string(first.ISBN13))
		require.NoError(t, err)
		assert.Equal(t, first.ISBN13, second.ISBN13)
	}
}

// Property 2: ToISBN10(ToISBN13(x)) == x, and the inverse for 978-prefixed 13s.
func TestConversionRoundTrip(t *testing.T) {
	isbn10 := ISBN10("0306406152")
	isbn13, err := ToISBN13(isbn10)
	require.NoError(t, err)
	assert.Equal(t, ISBN13("9780306406157"), isbn13)

	back, err := ToISBN10(isbn13)
	require.NoError(t, err)
	assert.Equal(t, isbn10, back)
}

func TestToISBN10RejectsNon978(t *testing.T) {
	_, err := ToISBN10(ISBN13("9790306406151"))
	require.Error(t, err)
}

func TestCheckDigit13(t *testing.T) {
	d, err := CheckDigit13("978030640615")
	require.NoError(t, err)
	assert.Equal(t, byte('7'), d)
}
