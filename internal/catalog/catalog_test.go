package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceOf(t *testing.T) {
	c := Default()

	it, err := c.PriceOf("screen")
	require.NoError(t, err)
	assert.Equal(t, "screen", it.Key)
	assert.Equal(t, int64(39900), it.Amount)
	assert.NotEmpty(t, it.Label)
}

func TestPriceOfUnknownItem(t *testing.T) {
	c := Default()

	_, err := c.PriceOf("hoverboard")
	assert.ErrorIs(t, err, ErrUnknownItem)

	// The sentinel "no second item" value is not a catalog entry.
	_, err = c.PriceOf(NoneKey)
	assert.ErrorIs(t, err, ErrUnknownItem)
}

func TestItemsPreserveOrder(t *testing.T) {
	c := New([]Item{
		{Key: "b", Label: "B", Amount: 200},
		{Key: "a", Label: "A", Amount: 100},
	})

	items := c.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].Key)
	assert.Equal(t, "a", items[1].Key)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "399.00 ₪", FormatAmount(39900))
	assert.Equal(t, "69.90 ₪", FormatAmount(6990))
	assert.Equal(t, "0.05 ₪", FormatAmount(5))
	assert.Equal(t, "-12.50 ₪", FormatAmount(-1250))
}
