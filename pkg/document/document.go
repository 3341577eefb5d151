// Package document renders commercial quotes and invoices for a lead.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"salesbot/pkg/bus"
	"salesbot/pkg/cart"
	"salesbot/pkg/lead"
)

// Document kinds.
const (
	KindQuote   = "quote"
	KindInvoice = "invoice"
)

// Data is everything a document template can print.
type Data struct {
	TenantName string
	Phone      string
	Address    string
	Lang       string
	Customer   string
	Items      []cart.Item
	Totals     cart.Totals
	VATRate    float64
	Date       time.Time
}

type Service interface {
	// GenerateQuote returns a URL to the rendered quote, or "" when documents
	// are not available.
	GenerateQuote(ctx context.Context, tenantID string, leadID string, data Data) (string, error)
	GenerateInvoice(ctx context.Context, tenantID string, leadID string, data Data) (string, error)
}

var ErrNoItems = errors.New("document has no items")

// FileRenderer writes documents to dir. Returned references are baseURL plus
// the file name, or the local path when baseURL is empty.
type FileRenderer struct {
	dir     string
	baseURL string
	now     func() time.Time
}

func NewFileRenderer(dir string, baseURL string) *FileRenderer {
	return &FileRenderer{
		dir:     strings.TrimSpace(dir),
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		now:     time.Now,
	}
}

func (r *FileRenderer) GenerateQuote(ctx context.Context, tenantID string, leadID string, data Data) (string, error) {
	return r.render(ctx, KindQuote, tenantID, leadID, data)
}

func (r *FileRenderer) GenerateInvoice(ctx context.Context, tenantID string, leadID string, data Data) (string, error) {
	return r.render(ctx, KindInvoice, tenantID, leadID, data)
}

func (r *FileRenderer) render(ctx context.Context, kind string, tenantID string, leadID string, data Data) (string, error) {
	if r.dir == "" {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data.Items) == 0 {
		return "", ErrNoItems
	}
	if data.Date.IsZero() {
		data.Date = r.now()
	}

	tmpl := templates[bus.ParseLang(data.Lang)][kind]

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view{Data: data, Number: lead.ShortID(leadID)}); err != nil {
		return "", fmt.Errorf("render %s: %w", kind, err)
	}

	root, err := resolveDir(r.dir)
	if err != nil {
		return "", err
	}

	tenantDir := filepath.Join(root, safeName(tenantID))
	if err := os.MkdirAll(tenantDir, 0o755); err != nil {
		return "", fmt.Errorf("create document dir: %w", err)
	}

	name := kind + "-" + safeName(leadID) + ".txt"
	path := filepath.Join(tenantDir, name)
	if !isWithin(root, path) {
		return "", fmt.Errorf("document path %q escapes %q", path, root)
	}

	if err := writeAtomic(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", kind, err)
	}

	if r.baseURL == "" {
		return path, nil
	}

	return r.baseURL + "/" + safeName(tenantID) + "/" + name, nil
}

type view struct {
	Data
	Number string
}

func safeName(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "default"
	}

	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, value)
}
