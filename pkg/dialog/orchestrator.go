// Package dialog turns one normalized inbound message into one reply.
//
// The orchestrator classifies the message, routes it to the qualification
// funnel or to a catalog, cart, lead or document action, and always answers:
// collaborator failures and panics become an apology in the customer's
// language.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"salesbot/pkg/bus"
	"salesbot/pkg/cart"
	"salesbot/pkg/catalog"
	"salesbot/pkg/config"
	"salesbot/pkg/document"
	"salesbot/pkg/funnel"
	"salesbot/pkg/intent"
	"salesbot/pkg/lead"
	"salesbot/pkg/logger"
	"salesbot/pkg/provider"
)

// Reply metadata keys.
const (
	MetaIntent     = "intent"
	MetaFunnelStep = "funnel_step"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultSearchLimit = 5
)

// TenantDirectory resolves tenant profiles. *config.Config implements it.
type TenantDirectory interface {
	Tenant(id string) config.TenantConfig
}

// Deps are the orchestrator's collaborators. Documents, Responder and Bus are
// optional.
type Deps struct {
	Tenants   TenantDirectory
	Catalog   catalog.Service
	Cart      cart.Service
	Leads     lead.Service
	Documents document.Service
	Responder provider.Responder
	Funnel    *funnel.Machine
	Bus       *bus.MessageBus
	Log       *slog.Logger
}

type Options struct {
	CollaboratorTimeout time.Duration
	SearchLimit         int
}

type Orchestrator struct {
	tenants   TenantDirectory
	catalog   catalog.Service
	cart      cart.Service
	leads     lead.Service
	documents document.Service
	responder provider.Responder
	funnel    *funnel.Machine
	bus       *bus.MessageBus
	log       *slog.Logger

	timeout     time.Duration
	searchLimit int

	handlers map[intent.Tag]handlerFunc
}

type handlerFunc func(*turn) error

// turn carries the state of one Handle call.
type turn struct {
	ctx    context.Context
	msg    bus.InboundMessage
	tenant config.TenantConfig
	lang   string
	texts  Texts
	key    string
	parsed intent.Parsed
	reply  *bus.OutboundMessage
}

// collaboratorError marks a failed call to an external collaborator.
type collaboratorError struct {
	op  string
	err error
}

func (e *collaboratorError) Error() string { return e.op + ": " + e.err.Error() }

func (e *collaboratorError) Unwrap() error { return e.err }

func New(deps Deps, opts Options) (*Orchestrator, error) {
	switch {
	case deps.Tenants == nil:
		return nil, errors.New("tenant directory is required")
	case deps.Catalog == nil:
		return nil, errors.New("catalog service is required")
	case deps.Cart == nil:
		return nil, errors.New("cart service is required")
	case deps.Leads == nil:
		return nil, errors.New("lead service is required")
	case deps.Funnel == nil:
		return nil, errors.New("funnel machine is required")
	}

	if opts.CollaboratorTimeout <= 0 {
		opts.CollaboratorTimeout = defaultTimeout
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = defaultSearchLimit
	}

	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	o := &Orchestrator{
		tenants:     deps.Tenants,
		catalog:     deps.Catalog,
		cart:        deps.Cart,
		leads:       deps.Leads,
		documents:   deps.Documents,
		responder:   deps.Responder,
		funnel:      deps.Funnel,
		bus:         deps.Bus,
		log:         log.With("component", "dialog.orchestrator"),
		timeout:     opts.CollaboratorTimeout,
		searchLimit: opts.SearchLimit,
	}

	o.handlers = map[intent.Tag]handlerFunc{
		intent.Search:       o.handleSearch,
		intent.AddToCart:    o.handleAddToCart,
		intent.ShowCart:     o.handleShowCart,
		intent.RemoveItem:   o.handleRemoveItem,
		intent.ClearCart:    o.handleClearCart,
		intent.Checkout:     o.handleCheckout,
		intent.Quote:        o.handleQuote,
		intent.Invoice:      o.handleInvoice,
		intent.DeliveryInfo: o.handleDeliveryInfo,
		intent.Promo:        o.handlePromo,
		intent.Address:      o.handleAddress,
		intent.Callback:     o.handleCallback,
		intent.Help:         o.handleHelp,
		intent.Stop:         o.handleStop,
		intent.Unknown:      o.handleUnknown,
	}

	o.funnel.OnComplete(o.captureFunnelLead)

	return o, nil
}

// HandleMessage adapts Handle to bus.MessageHandler. It never returns an error.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg bus.InboundMessage) (bus.OutboundMessage, error) {
	return o.Handle(ctx, msg), nil
}

// Handle computes the reply for msg. The reply always has non-empty Content.
func (o *Orchestrator) Handle(ctx context.Context, msg bus.InboundMessage) (reply bus.OutboundMessage) {
	if ctx == nil {
		ctx = context.Background()
	}

	startedAt := time.Now()
	tenant := o.tenants.Tenant(msg.TenantID)
	if strings.TrimSpace(msg.TenantID) == "" {
		msg.TenantID = tenant.ID
	}

	lang := msg.Lang
	if strings.TrimSpace(lang) == "" {
		lang = tenant.Lang
	}
	lang = bus.ParseLang(lang)

	t := &turn{
		ctx:    ctx,
		msg:    msg,
		tenant: tenant,
		lang:   lang,
		texts:  TextsFor(lang),
		key:    msg.ConversationKey(),
		parsed: intent.Parsed{Tag: intent.Unknown},
		reply:  &reply,
	}

	reply = bus.OutboundMessage{
		Channel:    msg.Channel,
		ChatID:     msg.ChatID,
		SessionKey: msg.SessionKey,
		Metadata:   map[string]string{},
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			o.log.Error("Dialog handler panicked", "tenant_id", msg.TenantID, "chat_id", msg.ChatID, "intent", t.parsed.Tag, "error", err)
			o.fail(t, "handler", err)
		}

		if strings.TrimSpace(reply.Content) == "" {
			reply.Content = t.texts.Help
		}
		reply.Metadata[MetaIntent] = string(t.parsed.Tag)
		reply.Metadata[MetaFunnelStep] = strconv.Itoa(o.funnel.Step(t.key))

		o.publish(t, bus.EventMessageHandled, map[string]string{
			MetaIntent:     string(t.parsed.Tag),
			MetaFunnelStep: reply.Metadata[MetaFunnelStep],
		}, "")

		o.log.Info("Message handled",
			"tenant_id", msg.TenantID,
			"channel", msg.Channel,
			"chat_id", msg.ChatID,
			"lang", lang,
			"intent", t.parsed.Tag,
			"funnel_step", reply.Metadata[MetaFunnelStep],
			"duration_ms", time.Since(startedAt).Milliseconds(),
		)
		o.log.Debug("Reply preview", "chat_id", msg.ChatID, "reply_preview", logger.Preview(reply.Content))
	}()

	if !msg.Valid() || intent.Normalize(msg.Content) == "" {
		t.parsed.Tag = intent.Help
		reply.Content = t.texts.Help
		return reply
	}

	o.log.Debug("Message received", "chat_id", msg.ChatID, "kind", msg.Kind, "message_preview", logger.Preview(msg.Content))

	t.parsed = intent.Parse(msg.Content, lang)

	if o.funnel.Has(t.key) && feedsFunnel(t.parsed) {
		reply.Content = o.funnel.Next(t.key, msg.Content)
		return reply
	}

	handler, ok := o.handlers[t.parsed.Tag]
	if !ok {
		handler = o.handleUnknown
	}

	if err := handler(t); err != nil {
		o.fail(t, operation(err), err)
	}

	return reply
}

// feedsFunnel reports whether an open funnel should take the message as an
// answer instead of routing it.
func feedsFunnel(p intent.Parsed) bool {
	return p.Tag == intent.Unknown || (p.Tag == intent.Search && p.Fallback)
}

// fail replaces the reply with the apology and reports the failure.
func (o *Orchestrator) fail(t *turn, op string, err error) {
	t.reply.Content = t.texts.Apology
	t.reply.Attachments = nil
	t.reply.Error = err.Error()

	o.report(t, op, err)
}

// report logs a collaborator failure and publishes it without touching the
// reply.
func (o *Orchestrator) report(t *turn, op string, err error) {
	o.log.Warn("Collaborator call failed",
		"tenant_id", t.msg.TenantID,
		"chat_id", t.msg.ChatID,
		"intent", t.parsed.Tag,
		"operation", op,
		"error", err,
	)
	o.publish(t, bus.EventCollaboratorFailed, map[string]string{"operation": op, MetaIntent: string(t.parsed.Tag)}, err.Error())
}

func (o *Orchestrator) publish(t *turn, eventType bus.EventType, payload map[string]string, errText string) {
	o.bus.PublishEvent(t.ctx, bus.Event{
		Type:       eventType,
		TenantID:   t.msg.TenantID,
		Channel:    t.msg.Channel,
		ChatID:     t.msg.ChatID,
		SessionKey: t.msg.SessionKey,
		RequestID:  t.msg.Metadata["message_id"],
		Payload:    payload,
		Error:      errText,
	})
}

// invoke runs fn under the collaborator timeout and tags its error with op.
// The result is abandoned once the deadline passes, whether or not fn honors
// ctx; a panic inside fn is returned as an error.
func invoke[T any](o *Orchestrator, t *turn, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(t.ctx, o.timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)

	go func() {
		var r result
		defer func() {
			if p := recover(); p != nil {
				r = result{err: fmt.Errorf("panic: %v", p)}
			}
			done <- r
		}()
		r.value, r.err = fn(ctx)
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil {
			return zero, &collaboratorError{op: op, err: r.err}
		}
		if err := ctx.Err(); err != nil {
			return zero, &collaboratorError{op: op, err: err}
		}
		return r.value, nil
	case <-ctx.Done():
		return zero, &collaboratorError{op: op, err: ctx.Err()}
	}
}

func operation(err error) string {
	var ce *collaboratorError
	if errors.As(err, &ce) {
		return ce.op
	}

	return "handler"
}

// captureFunnelLead records a completed funnel as a lead. It runs after the
// session is closed, so failures only get logged.
func (o *Orchestrator) captureFunnelLead(key string, s funnel.Session) {
	tenantID, channel, chatID := splitKey(key)

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	currency := o.tenants.Tenant(tenantID).Currency
	id, err := o.leads.Create(ctx, lead.Lead{
		TenantID: tenantID,
		Channel:  channel,
		ChatID:   chatID,
		Currency: currency,
		Source:   lead.SourceFunnel,
		Notes: map[string]string{
			funnel.SlotWhat:   s.Slots[funnel.SlotWhat],
			funnel.SlotSpec:   s.Slots[funnel.SlotSpec],
			funnel.SlotBudget: s.Slots[funnel.SlotBudget],
			"lang":            s.Lang,
		},
	})
	if err != nil {
		o.log.Warn("Funnel lead capture failed", "tenant_id", tenantID, "chat_id", chatID, "error", err)
		o.bus.PublishEvent(ctx, bus.Event{
			Type:     bus.EventCollaboratorFailed,
			TenantID: tenantID,
			Channel:  channel,
			ChatID:   chatID,
			Payload:  map[string]string{"operation": "lead.create"},
			Error:    err.Error(),
		})
		return
	}

	for _, eventType := range []bus.EventType{bus.EventFunnelCompleted, bus.EventLeadCreated} {
		o.bus.PublishEvent(ctx, bus.Event{
			Type:     eventType,
			TenantID: tenantID,
			Channel:  channel,
			ChatID:   chatID,
			Payload:  map[string]string{"lead_id": id, "source": lead.SourceFunnel},
		})
	}
	o.log.Info("Funnel lead captured", "tenant_id", tenantID, "chat_id", chatID, "lead_id", id)
}

func splitKey(key string) (string, string, string) {
	parts := strings.SplitN(key, ":", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}

	return parts[0], parts[1], parts[2]
}
