package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
tenants:
  stroymart:
    currency: KZT
    products:
      - sku: CM-400
        name: Цемент М400 50 кг
        category: Сухие смеси
        price: 2900
        photo_url: https://cdn.example.com/cm400.jpg
      - sku: CM-500
        name: Цемент М500 50 кг
        category: Сухие смеси
        price: 3400
      - sku: DR-18
        name: Дрель аккумуляторная 18V
        category: Инструмент
        price: 45000
        currency: USD
        keywords: [шуруповерт, бұрғы]
  other:
    products:
      - sku: X-1
        name: Цемент белый
        price: 5000
`

func TestParseAndSearch(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	require.Equal(t, 3, c.Size("stroymart"))

	products, err := c.Search(context.Background(), "stroymart", "цемента", 10)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "CM-400", products[0].SKU)
	assert.Equal(t, "KZT", products[0].Currency)
	assert.Equal(t, "https://cdn.example.com/cm400.jpg", products[0].PhotoURL)

	drills, err := c.Search(context.Background(), "stroymart", "бұрғы", 10)
	require.NoError(t, err)
	require.Len(t, drills, 1)
	assert.Equal(t, "USD", drills[0].Currency)
}

func TestSearchRanksByMatchedTokens(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	products, err := c.Search(context.Background(), "stroymart", "цемент м500", 10)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "CM-500", products[0].SKU)
}

func TestSearchRespectsLimitAndTenant(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	products, err := c.Search(context.Background(), "stroymart", "цемент", 1)
	require.NoError(t, err)
	assert.Len(t, products, 1)

	other, err := c.Search(context.Background(), "other", "цемент", 10)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, "X-1", other[0].SKU)

	none, err := c.Search(context.Background(), "missing", "цемент", 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	empty, err := c.Search(context.Background(), "stroymart", "  шт ", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGetBySKU(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	p, err := c.GetBySKU(context.Background(), "stroymart", "cm-500")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 3400.0, p.Price)

	missing, err := c.GetBySKU(context.Background(), "stroymart", "NOPE-1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSearchHonorsCancelledContext(t *testing.T) {
	c := New(map[string][]Product{"t": {{SKU: "A-1", Name: "Кирпич"}}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Search(ctx, "t", "кирпич", 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tenants:\n  t:\n    products:\n      - name: no sku\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "without sku")
}

func TestExampleCatalogLoads(t *testing.T) {
	t.Parallel()

	c, err := Load("../../config/catalog.example.yaml")
	require.NoError(t, err)
	require.Equal(t, 4, c.Size("stroymart"))

	product, err := c.GetBySKU(context.Background(), "stroymart", "GK-12")
	require.NoError(t, err)
	require.NotNil(t, product)
	assert.Equal(t, "KZT", product.Currency)
}
