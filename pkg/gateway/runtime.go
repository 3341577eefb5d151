package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"salesbot/pkg/bus"
	"salesbot/pkg/cart"
	"salesbot/pkg/catalog"
	"salesbot/pkg/config"
	"salesbot/pkg/dialog"
	"salesbot/pkg/document"
	"salesbot/pkg/funnel"
	"salesbot/pkg/lead"
	"salesbot/pkg/media"
	"salesbot/pkg/provider"
	"salesbot/pkg/store"
)

// Runtime owns the dialog stack shared by every channel: stores, collaborators,
// the orchestrator and the media stage in front of it.
type Runtime struct {
	cfg *config.Config
	log *slog.Logger

	bus         *bus.MessageBus
	catalog     *catalog.FileCatalog
	leads       *lead.Memory
	responder   provider.Responder
	orch        *dialog.Orchestrator
	handler     bus.MessageHandler
	funnelStore *store.Memory[funnel.Session]
	cartStore   *store.Memory[[]cart.Item]

	stopObserver context.CancelFunc
	closeOnce    sync.Once
}

// RuntimeOptions replaces collaborators that are otherwise built from config.
type RuntimeOptions struct {
	Catalog     catalog.Service
	Leads       lead.Service
	Documents   document.Service
	Responder   provider.Responder
	Transcriber provider.Transcriber
}

// NewRuntime builds the dialog stack from cfg.
func NewRuntime(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Runtime, error) {
	return NewRuntimeWith(ctx, cfg, log, RuntimeOptions{})
}

// NewRuntimeWith builds the dialog stack, preferring the collaborators in opts.
func NewRuntimeWith(ctx context.Context, cfg *config.Config, log *slog.Logger, opts RuntimeOptions) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = slog.Default()
	}

	rt := &Runtime{
		cfg: cfg,
		log: log.With("component", "gateway.runtime"),
		bus: bus.NewMessageBus(),
	}

	catalogService := opts.Catalog
	if catalogService == nil {
		fileCatalog, err := loadCatalog(cfg.Catalog.Path)
		if err != nil {
			return nil, err
		}
		rt.catalog = fileCatalog
		catalogService = fileCatalog
		for _, tenant := range cfg.Tenants {
			rt.log.Info("Catalog loaded", "tenant_id", tenant.ID, "products", fileCatalog.Size(tenant.ID))
		}
	}

	leadService := opts.Leads
	if leadService == nil {
		rt.leads = lead.NewMemory()
		leadService = rt.leads
	}

	documents := opts.Documents
	if documents == nil && strings.TrimSpace(cfg.Documents.Dir) != "" {
		documents = document.NewFileRenderer(cfg.Documents.Dir, cfg.Documents.BaseURL)
	}

	responder, transcriber := opts.Responder, opts.Transcriber
	if responder == nil && transcriber == nil {
		var err error
		responder, transcriber, err = provider.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("initialize provider: %w", err)
		}
	}
	rt.responder = responder

	ttl := time.Duration(cfg.Dialog.SessionTTLMinutes) * time.Minute
	rt.funnelStore = store.NewMemory[funnel.Session](ttl)
	rt.cartStore = store.NewMemory[[]cart.Item](ttl)
	for _, s := range []interface{ StartSweeper(string) error }{rt.funnelStore, rt.cartStore} {
		if err := s.StartSweeper(store.DefaultSweepSpec); err != nil {
			rt.stopSweepers()
			return nil, fmt.Errorf("start session sweeper: %w", err)
		}
	}

	timeout := time.Duration(cfg.Dialog.CollaboratorTimeoutSeconds) * time.Second
	orch, err := dialog.New(dialog.Deps{
		Tenants:   cfg,
		Catalog:   catalogService,
		Cart:      cart.NewMemory(rt.cartStore),
		Leads:     leadService,
		Documents: documents,
		Responder: responder,
		Funnel:    funnel.New(rt.funnelStore),
		Bus:       rt.bus,
		Log:       log,
	}, dialog.Options{
		CollaboratorTimeout: timeout,
		SearchLimit:         cfg.Dialog.SearchLimit,
	})
	if err != nil {
		rt.stopSweepers()
		return nil, fmt.Errorf("initialize dialog: %w", err)
	}
	rt.orch = orch

	mediaTimeout := time.Duration(cfg.Providers.OpenAI.RequestTimeoutSeconds) * time.Second
	rt.handler = media.New(transcriber, mediaTimeout, log).Wrap(orch.HandleMessage)

	observerCtx, cancel := context.WithCancel(ctx)
	rt.stopObserver = cancel
	events, unsubscribe := rt.bus.SubscribeEvents(observerCtx, eventBuffer)
	go observeEvents(observerCtx, events, unsubscribe, log)

	rt.log.Info("Dialog runtime ready",
		"tenants", len(cfg.Tenants),
		"ai", responder != nil,
		"transcription", transcriber != nil,
		"documents", documents != nil,
		"session_ttl_minutes", cfg.Dialog.SessionTTLMinutes,
	)

	return rt, nil
}

// Handle runs one inbound message through the media stage and the orchestrator.
func (rt *Runtime) Handle(ctx context.Context, msg bus.InboundMessage) (bus.OutboundMessage, error) {
	return rt.handler(ctx, msg)
}

// Bus exposes the runtime's event fan-out.
func (rt *Runtime) Bus() *bus.MessageBus {
	return rt.bus
}

// LeadCounts reports captured leads per source when leads are kept in memory.
func (rt *Runtime) LeadCounts() map[string]int {
	if rt.leads == nil {
		return nil
	}

	return rt.leads.Count()
}

// OpenSessions reports live funnel sessions and carts.
func (rt *Runtime) OpenSessions() (funnels int, carts int) {
	return rt.funnelStore.Len(), rt.cartStore.Len()
}

// Health checks the AI responder when it supports it.
func (rt *Runtime) Health(ctx context.Context) error {
	checker, ok := rt.responder.(provider.HealthChecker)
	if !ok {
		return nil
	}

	return checker.Health(ctx)
}

// HasHealthCheck reports whether Health checks anything.
func (rt *Runtime) HasHealthCheck() bool {
	_, ok := rt.responder.(provider.HealthChecker)
	return ok
}

// Close stops background work. It is safe to call more than once.
func (rt *Runtime) Close() {
	rt.closeOnce.Do(func() {
		rt.stopSweepers()
		if rt.stopObserver != nil {
			rt.stopObserver()
		}
		rt.bus.Close()
	})
}

func (rt *Runtime) stopSweepers() {
	if rt.funnelStore != nil {
		rt.funnelStore.Stop()
	}
	if rt.cartStore != nil {
		rt.cartStore.Stop()
	}
}

// loadCatalog reads the catalog file. Without a path the bot runs with an
// empty catalog, where every search finds nothing.
func loadCatalog(path string) (*catalog.FileCatalog, error) {
	if strings.TrimSpace(path) == "" {
		slog.Default().With("component", "gateway.runtime").Warn("No catalog configured; searches will find nothing")
		return catalog.New(nil), nil
	}

	c, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	return c, nil
}
