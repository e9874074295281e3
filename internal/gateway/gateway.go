// Package gateway talks to the payment providers a bot can take money through.
package gateway

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"remnabot/internal/entities"
)

type InvoiceRequest struct {
	PaymentID   uuid.UUID
	BotID       int64
	ChatID      int64
	Amount      int64 // minor units of Currency, whole stars for XTR
	Currency    string
	Title       string
	Description string
}

type Invoice struct {
	ExternalID string
	PayURL     string
}

// WebhookEvent is a provider notification about one invoice.
type WebhookEvent struct {
	Gateway    string
	ExternalID string
	BotID      int64     // tenant the invoice was issued for, zero if the payload has none
	PaymentID  uuid.UUID // from the payload we attached to the invoice, may be zero
	Status     entities.PaymentStatus
}

type Gateway interface {
	Name() string
	Supports(currency string) bool
	CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error)
	ParseWebhook(r *http.Request) (*WebhookEvent, error)
}

// Registry holds the enabled gateways by name.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway)}
	for _, g := range gateways {
		r.Register(g)
	}
	return r
}

func (r *Registry) Register(g Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[g.Name()] = g
}

func (r *Registry) Get(name string) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gateways[name]
	if !ok {
		return nil, errors.Wrap(entities.ErrGatewayDisabled, name)
	}
	return g, nil
}

// Names returns the enabled gateway names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// For returns the names of gateways able to charge in currency.
func (r *Registry) For(currency string) []string {
	var names []string
	for _, name := range r.Names() {
		g, err := r.Get(name)
		if err == nil && g.Supports(currency) {
			names = append(names, name)
		}
	}
	return names
}
