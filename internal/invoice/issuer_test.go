package invoice

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"repairbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrder() *models.Order {
	return &models.Order{
		ID:            1,
		CustomerName:  "דני",
		CustomerPhone: "0501234567",
		Item1Key:      "screen",
		Item1Label:    "📱 מסך",
		Item1Amount:   39900,
		Item2Key:      "glass",
		Item2Label:    "🛡️ מגן זכוכית",
		Item2Amount:   4900,
		TotalAmount:   44800,
	}
}

func TestRenderWritesArtifact(t *testing.T) {
	dir := t.TempDir()
	issuer := NewIssuer(dir, "", BusinessInfo{
		Name:     "Expresphone",
		Subtitle: "מעבדה לתיקון סלולר",
		Phone:    "054-0000000",
		Note1:    "עוסק פטור",
		Note2:    "ללא אחריות על נזקי מים",
	})

	path, err := issuer.Render(testOrder(), 17, time.Now())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "invoice_17.pdf"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestRenderCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "invoices")
	issuer := NewIssuer(dir, "", BusinessInfo{Name: "Expresphone"})

	path, err := issuer.Render(testOrder(), 1, time.Now())
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestRenderSingleItemOrder(t *testing.T) {
	dir := t.TempDir()
	issuer := NewIssuer(dir, "", BusinessInfo{Name: "Expresphone"})

	o := testOrder()
	o.Item2Key, o.Item2Label, o.Item2Amount = "", "", 0
	o.TotalAmount = o.Item1Amount

	path, err := issuer.Render(o, 2, time.Now())
	require.NoError(t, err)
	assert.FileExists(t, path)
}
