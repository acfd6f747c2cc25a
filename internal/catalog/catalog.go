package catalog

import (
	"errors"
	"fmt"
)

// ErrUnknownItem is returned by PriceOf for keys not registered in the catalog.
var ErrUnknownItem = errors.New("unknown catalog item")

// NoneKey is the sentinel "no second item" value used by the order flow.
const NoneKey = "none"

// Item is a purchasable service. Amount is in agorot.
type Item struct {
	Key    string
	Label  string
	Amount int64
}

// Catalog is a read-only mapping of item keys to labels and prices.
// Changing it requires a deploy; orders snapshot labels and amounts at
// creation time so historical records are unaffected.
type Catalog struct {
	items map[string]Item
	keys  []string
}

// New builds a catalog from an ordered item list. Menu rendering follows
// the given order.
func New(items []Item) *Catalog {
	c := &Catalog{items: make(map[string]Item, len(items))}
	for _, it := range items {
		c.items[it.Key] = it
		c.keys = append(c.keys, it.Key)
	}
	return c
}

// Default returns the repair-shop pricelist.
func Default() *Catalog {
	return New([]Item{
		{Key: "screen", Label: "📱 מסך", Amount: 39900},
		{Key: "battery", Label: "🔋 סוללה", Amount: 29900},
		{Key: "charge", Label: "🔌 שקע טעינה", Amount: 34900},
		{Key: "delivery", Label: "🚚 שליחות", Amount: 6990},
		{Key: "glass", Label: "🛡️ מגן זכוכית", Amount: 4900},
	})
}

// PriceOf looks up an item by key.
func (c *Catalog) PriceOf(key string) (Item, error) {
	it, ok := c.items[key]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrUnknownItem, key)
	}
	return it, nil
}

// Has reports whether key is registered.
func (c *Catalog) Has(key string) bool {
	_, ok := c.items[key]
	return ok
}

// Items returns all items in menu order.
func (c *Catalog) Items() []Item {
	out := make([]Item, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, c.items[k])
	}
	return out
}

// FormatAmount renders an agorot amount as shekels, e.g. 39900 -> "399.00 ₪".
func FormatAmount(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d ₪", sign, amount/100, amount%100)
}
