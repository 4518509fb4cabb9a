package ocr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixDigitConfusions(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"1O.5O", "10.50"},
		{"l.29", "1.29"},
		{"I2", "12"},
		{"S.99", "S.99"},
		{"2S", "25"},
		{"B9", "89"},
		{"SS1", "551"},
		{"Apples 1.29", "Apples 1.29"},
		{"TOTAL 6.46", "TOTAL 6.46"},
		{"Bulbs 4.5O", "Bulbs 4.50"},
		{"BOB", "BOB"},
		{"", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FixDigitConfusions(c.in), "input %q", c.in)
	}
}

func TestFixDigitConfusionsIdempotent(t *testing.T) {
	inputs := []string{"1O.5O", "Milk 2.99", "SS1 B2B", "Il1 OOS 0S", "Bananas 2 x 0.59", "lIOSB 7"}
	for _, in := range inputs {
		once := FixDigitConfusions(in)
		assert.Equal(t, once, FixDigitConfusions(once), "input %q", in)
	}
}

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"1,234.56", 1234.56},
		{"1.234,56", 1234.56},
		{"$2.99", 2.99},
		{"0.59", 0.59},
		{"2,99", 299},
		{"1,234", 1234},
		{"1,234,567", 1234567},
		{"1.234.567", 1234567},
		{"12", 12},
		{"-1.50", -1.5},
		{"EUR 3,5", 35},
		{"1,5,0", 150},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, ParseMoney(c.in), 1e-9, "input %q", c.in)
	}
}

func TestParseMoneyUnparseable(t *testing.T) {
	for _, in := range []string{"not a number", "", ".", ",", "-", "1-2"} {
		assert.True(t, math.IsNaN(ParseMoney(in)), "input %q", in)
	}
}
