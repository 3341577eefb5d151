// Package lead records sales leads captured by the dialog.
package lead

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"salesbot/pkg/cart"
)

// Lead sources.
const (
	SourceCheckout = "checkout"
	SourceQuote    = "quote"
	SourceInvoice  = "invoice"
	SourceFunnel   = "funnel"
	SourceCallback = "callback"
)

type Lead struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenant_id"`
	Channel   string            `json:"channel"`
	ChatID    string            `json:"chat_id"`
	Name      string            `json:"name,omitempty"`
	Phone     string            `json:"phone,omitempty"`
	Items     []cart.Item       `json:"items,omitempty"`
	Sum       float64           `json:"sum"`
	Currency  string            `json:"currency,omitempty"`
	Source    string            `json:"source"`
	Notes     map[string]string `json:"notes,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type Service interface {
	// Create stores lead and returns its id.
	Create(ctx context.Context, lead Lead) (string, error)
}

var ErrTenantRequired = errors.New("lead tenant is required")

// Memory keeps leads in process, newest last.
type Memory struct {
	now func() time.Time

	mu    sync.RWMutex
	leads []Lead
}

func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

func (m *Memory) Create(ctx context.Context, lead Lead) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(lead.TenantID) == "" {
		return "", ErrTenantRequired
	}

	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = m.now().UTC()
	}
	lead.Items = append([]cart.Item(nil), lead.Items...)

	m.mu.Lock()
	m.leads = append(m.leads, lead)
	m.mu.Unlock()

	return lead.ID, nil
}

// ShortID is the human-facing lead number printed in replies and documents.
func ShortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}

	return strings.ToUpper(id)
}

// List returns the tenant's leads, oldest first.
func (m *Memory) List(tenantID string) []Lead {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Lead, 0)
	for _, l := range m.leads {
		if l.TenantID == tenantID {
			out = append(out, l)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Count reports leads per source across all tenants.
func (m *Memory) Count() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for _, l := range m.leads {
		counts[l.Source]++
	}

	return counts
}
