// Package catalog looks products up per tenant.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Product is one sellable item of a tenant's catalog.
type Product struct {
	SKU         string   `yaml:"sku" json:"sku"`
	Name        string   `yaml:"name" json:"name"`
	Category    string   `yaml:"category,omitempty" json:"category,omitempty"`
	Price       float64  `yaml:"price" json:"price"`
	Currency    string   `yaml:"currency,omitempty" json:"currency,omitempty"`
	Unit        string   `yaml:"unit,omitempty" json:"unit,omitempty"`
	PhotoURL    string   `yaml:"photo_url,omitempty" json:"photo_url,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Keywords    []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
}

// Service is the catalog contract the dialog layer depends on.
type Service interface {
	Search(ctx context.Context, tenantID string, query string, limit int) ([]Product, error)
	// GetBySKU returns nil, nil when the SKU is unknown.
	GetBySKU(ctx context.Context, tenantID string, sku string) (*Product, error)
}

type fileFormat struct {
	Tenants map[string]tenantCatalog `yaml:"tenants"`
}

type tenantCatalog struct {
	Currency string    `yaml:"currency"`
	Products []Product `yaml:"products"`
}

// FileCatalog is an immutable in-memory catalog, usually loaded from YAML.
type FileCatalog struct {
	tenants map[string][]indexedProduct
}

type indexedProduct struct {
	Product
	tokens []string
}

// Load reads a catalog file shaped as tenants -> {currency, products}.
func Load(path string) (*FileCatalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("catalog path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	return Parse(data)
}

// Parse decodes catalog YAML.
func Parse(data []byte) (*FileCatalog, error) {
	var file fileFormat
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	tenants := make(map[string][]Product, len(file.Tenants))
	for id, tenant := range file.Tenants {
		products := make([]Product, 0, len(tenant.Products))
		for _, p := range tenant.Products {
			if strings.TrimSpace(p.SKU) == "" {
				return nil, fmt.Errorf("parse catalog: tenant %s has a product without sku", id)
			}
			if p.Currency == "" {
				p.Currency = tenant.Currency
			}
			products = append(products, p)
		}
		tenants[id] = products
	}

	return New(tenants), nil
}

// New builds a catalog from products grouped by tenant id.
func New(tenants map[string][]Product) *FileCatalog {
	c := &FileCatalog{tenants: make(map[string][]indexedProduct, len(tenants))}
	for id, products := range tenants {
		indexed := make([]indexedProduct, 0, len(products))
		for _, p := range products {
			fields := append([]string{p.Name, p.Category, p.SKU}, p.Keywords...)
			indexed = append(indexed, indexedProduct{Product: p, tokens: tokenize(strings.Join(fields, " "))})
		}
		c.tenants[id] = indexed
	}

	return c
}

// Size reports how many products tenantID has.
func (c *FileCatalog) Size(tenantID string) int {
	return len(c.tenants[tenantID])
}

// Search scores products by how many query stems prefix one of their tokens.
// Ties keep catalog order.
func (c *FileCatalog) Search(ctx context.Context, tenantID string, query string, limit int) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stems := make([]string, 0)
	for _, token := range tokenize(query) {
		if _, skip := stopWords[token]; skip {
			continue
		}
		stems = append(stems, stem(token))
	}
	if len(stems) == 0 {
		return nil, nil
	}

	type hit struct {
		product Product
		score   int
	}

	hits := make([]hit, 0)
	for _, p := range c.tenants[tenantID] {
		score := 0
		for _, s := range stems {
			for _, token := range p.tokens {
				if strings.HasPrefix(token, s) {
					score++
					break
				}
			}
		}
		if score > 0 {
			hits = append(hits, hit{product: p.Product, score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	products := make([]Product, 0, len(hits))
	for _, h := range hits {
		products = append(products, h.product)
	}

	return products, nil
}

func (c *FileCatalog) GetBySKU(ctx context.Context, tenantID string, sku string) (*Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sku = strings.TrimSpace(sku)
	for _, p := range c.tenants[tenantID] {
		if strings.EqualFold(p.SKU, sku) {
			product := p.Product
			return &product, nil
		}
	}

	return nil, nil
}

var stopWords = map[string]struct{}{
	"шт": {}, "кг": {}, "для": {}, "на": {}, "и": {}, "с": {}, "в": {}, "по": {}, "мне": {}, "үшін": {}, "және": {},
}

func tokenize(text string) []string {
	text = strings.ReplaceAll(strings.ToLower(text), "ё", "е")
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "-")
		if len([]rune(f)) < 2 {
			continue
		}
		tokens = append(tokens, f)
	}

	return tokens
}

// stem drops inflection endings so "цемента" finds "цемент".
func stem(token string) string {
	runes := []rune(token)
	n := len(runes)
	switch {
	case n >= 7:
		n -= 2
	case n >= 5:
		n--
	}

	return string(runes[:n])
}
