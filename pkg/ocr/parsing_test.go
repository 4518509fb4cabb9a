package ocr

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReceiptTextEndToEnd(t *testing.T) {
	text := "Walmart Supercenter\nBananas 2 x 0.59\n2 Apples 1.29\nMilk 2.99\nSUBTOTAL 6.46\nTOTAL 6.46\n"
	items := ParseReceiptText(text)
	assert.Equal(t, []Item{
		{Name: "Bananas", Quantity: 2, UnitPrice: 0.59},
		{Name: "Apples", Quantity: 2, UnitPrice: 1.29},
		{Name: "Milk", Quantity: 1, UnitPrice: 2.99},
	}, items)
}

func TestParsePatternPriority(t *testing.T) {
	items := ParseReceiptText("Bananas 2 x 0.59")
	require.Len(t, items, 1)
	assert.Equal(t, Item{Name: "Bananas", Quantity: 2, UnitPrice: 0.59}, items[0])
}

func TestParseMultiplicationMarkers(t *testing.T) {
	cases := map[string]Item{
		"Eggs 3 * 0.25":    {Name: "Eggs", Quantity: 3, UnitPrice: 0.25},
		"Eggs 3 × 0.25":    {Name: "Eggs", Quantity: 3, UnitPrice: 0.25},
		"Eggs 3 @ $0.25":   {Name: "Eggs", Quantity: 3, UnitPrice: 0.25},
		"Eggs 3x0.25":      {Name: "Eggs", Quantity: 3, UnitPrice: 0.25},
		"Coffee 1,234.50":  {Name: "Coffee", Quantity: 1, UnitPrice: 1234.5},
		"Kaffee 1.234,50":  {Name: "Kaffee", Quantity: 1, UnitPrice: 1234.5},
		"Bread   l.5O":     {Name: "Bread", Quantity: 1, UnitPrice: 1.5},
		"Milk 2,99":        {Name: "Milk", Quantity: 1, UnitPrice: 299},
		"Milk 2% 3.49":     {Name: "Milk 2%", Quantity: 1, UnitPrice: 3.49},
		"3 Red Apples 0.5": {Name: "Red Apples", Quantity: 3, UnitPrice: 0.5},
	}
	for line, want := range cases {
		items := ParseReceiptText(line)
		if assert.Len(t, items, 1, "line %q", line) {
			assert.Equal(t, want, items[0], "line %q", line)
		}
	}
}

func TestParseDropsNegativeAmounts(t *testing.T) {
	items := ParseReceiptText("Coupon -1.00\nDeposit refund -0.25\nBread 1.50")
	assert.Equal(t, []Item{{Name: "Bread", Quantity: 1, UnitPrice: 1.5}}, items)
}

func TestParseRejectsZeroQuantity(t *testing.T) {
	// qty 0 is rejected by name-qty-x-price; name-price then takes the first number.
	items := ParseReceiptText("Gum 0 x 1.00")
	require.Len(t, items, 1)
	assert.Equal(t, Item{Name: "Gum", Quantity: 1, UnitPrice: 0}, items[0])
}

func TestParseNoiseSuppression(t *testing.T) {
	text := strings.Join([]string{
		"Subtotal 10.00",
		"TOTAL 12.00",
		"VISA 1234",
		"Thank you 5.00",
		"Tax 1.20",
		"Change 0.50",
		"Items 3",
	}, "\n")
	assert.Empty(t, ParseReceiptText(text))
}

func TestParseDeduplicatesAcrossPasses(t *testing.T) {
	pass1 := "Milk 2.99\nBread 1.50"
	pass2 := "Milk 2.99\nEggs 3.10"
	items := ParseReceiptText(pass1 + "\n" + pass2)
	assert.Equal(t, []Item{
		{Name: "Milk", Quantity: 1, UnitPrice: 2.99},
		{Name: "Bread", Quantity: 1, UnitPrice: 1.5},
		{Name: "Eggs", Quantity: 1, UnitPrice: 3.1},
	}, items)
}

func TestParseLineEndingsAndSpacing(t *testing.T) {
	items := ParseReceiptText("  Milk    2.99  \r\n\r\nBread\t\t1.50\rJam 3")
	assert.Equal(t, []Item{
		{Name: "Milk", Quantity: 1, UnitPrice: 2.99},
		{Name: "Bread", Quantity: 1, UnitPrice: 1.5},
		{Name: "Jam", Quantity: 1, UnitPrice: 3},
	}, items)
}

func TestParseCapKeepsFirstItems(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&b, "Widget-%d %d.25\n", i, i+1)
	}
	items := ParseReceiptText(b.String())
	require.Len(t, items, DefaultMaxItems)
	assert.Equal(t, Item{Name: "Widget-0", Quantity: 1, UnitPrice: 1.25}, items[0])
	assert.Equal(t, Item{Name: "Widget-127", Quantity: 1, UnitPrice: 128.25}, items[127])
}

func TestParseEmptyAndGarbage(t *testing.T) {
	assert.Empty(t, ParseReceiptText(""))
	assert.Empty(t, ParseReceiptText("~~~~\n#### ::::\nno digits here"))
}

func TestNewParserCustomSettings(t *testing.T) {
	p, err := NewParser(`(?i)^(?:summe|mwst)\b`, 2)
	require.NoError(t, err)
	items := p.Parse("Summe 9.99\nBrot 2,49\nMilch 1,19\nKäse 4,99")
	assert.Equal(t, []Item{
		{Name: "Brot", Quantity: 1, UnitPrice: 249},
		{Name: "Milch", Quantity: 1, UnitPrice: 119},
	}, items)

	_, err = NewParser(`(unclosed`, 0)
	assert.Error(t, err)
}
