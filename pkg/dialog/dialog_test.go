package dialog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesbot/pkg/bus"
	"salesbot/pkg/cart"
	"salesbot/pkg/catalog"
	"salesbot/pkg/config"
	"salesbot/pkg/document"
	"salesbot/pkg/funnel"
	"salesbot/pkg/intent"
	"salesbot/pkg/lead"
	"salesbot/pkg/provider"
)

const tenantID = "stroymart"

type fixture struct {
	orch   *Orchestrator
	leads  *lead.Memory
	cart   *cart.Memory
	funnel *funnel.Machine
	bus    *bus.MessageBus
}

type fixtureOption func(*Deps)

func withCatalog(c catalog.Service) fixtureOption {
	return func(d *Deps) { d.Catalog = c }
}

func withDocuments(s document.Service) fixtureOption {
	return func(d *Deps) { d.Documents = s }
}

func withResponder(r provider.Responder) fixtureOption {
	return func(d *Deps) { d.Responder = r }
}

func withLeads(l lead.Service) fixtureOption {
	return func(d *Deps) { d.Leads = l }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	cfg := &config.Config{
		Tenants: []config.TenantConfig{{
			ID:       tenantID,
			Name:     "СтройМарт",
			Lang:     bus.LangRU,
			Currency: "KZT",
			VATRate:  0.12,
			Phone:    "+7 727 000 00 00",
			Delivery: "Доставка по Алматы бесплатно от 50 000 тг.",
		}},
	}
	cfg.Dialog.DefaultTenant = tenantID
	cfg.Dialog.DefaultLang = bus.LangRU

	f := &fixture{
		leads:  lead.NewMemory(),
		cart:   cart.NewMemory(nil),
		funnel: funnel.New(nil),
		bus:    bus.NewMessageBus(),
	}
	t.Cleanup(f.bus.Close)

	deps := Deps{
		Tenants: cfg,
		Catalog: catalog.New(map[string][]catalog.Product{
			tenantID: {
				{SKU: "CM-400", Name: "Цемент М400", Price: 2500, Currency: "KZT", PhotoURL: "https://cdn.example/cm400.jpg"},
				{SKU: "CM-500", Name: "Цемент М500", Price: 3100, Currency: "KZT"},
				{SKU: "GK-12", Name: "Гипсокартон 12,5 мм", Price: 2900, Currency: "KZT"},
			},
		}),
		Cart:   f.cart,
		Leads:  f.leads,
		Funnel: f.funnel,
		Bus:    f.bus,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	orch, err := New(deps, Options{CollaboratorTimeout: time.Second})
	require.NoError(t, err)
	f.orch = orch

	return f
}

func (f *fixture) say(text string) bus.OutboundMessage {
	return f.orch.Handle(context.Background(), bus.InboundMessage{
		TenantID:   tenantID,
		Channel:    bus.ChannelTelegram,
		ChatID:     "100",
		SenderID:   "100",
		SenderName: "Айгерим",
		Lang:       bus.LangRU,
		Kind:       bus.KindText,
		Content:    text,
		SessionKey: "telegram:100",
	})
}

func (f *fixture) key() string {
	return tenantID + ":" + bus.ChannelTelegram + ":100"
}

type failingCatalog struct{}

func (failingCatalog) Search(context.Context, string, string, int) ([]catalog.Product, error) {
	return nil, errors.New("catalog backend unavailable")
}

func (failingCatalog) GetBySKU(context.Context, string, string) (*catalog.Product, error) {
	return nil, errors.New("catalog backend unavailable")
}

type panickingCatalog struct{ failingCatalog }

func (panickingCatalog) Search(context.Context, string, string, int) ([]catalog.Product, error) {
	panic("index corrupted")
}

type slowCatalog struct{ failingCatalog }

func (slowCatalog) Search(ctx context.Context, _ string, _ string, _ int) ([]catalog.Product, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// stubbornCatalog ignores ctx and answers late.
type stubbornCatalog struct {
	failingCatalog
	delay time.Duration
}

func (c stubbornCatalog) Search(context.Context, string, string, int) ([]catalog.Product, error) {
	time.Sleep(c.delay)
	return []catalog.Product{{SKU: "CM-400", Name: "Цемент М400", Price: 2500, Currency: "KZT"}}, nil
}

type failingLeads struct{}

func (failingLeads) Create(context.Context, lead.Lead) (string, error) {
	return "", errors.New("sheet quota exceeded")
}

type stubResponder struct {
	answer string
	err    error

	mu      sync.Mutex
	prompts []provider.Prompt
}

func (r *stubResponder) Generate(_ context.Context, p provider.Prompt) (string, error) {
	r.mu.Lock()
	r.prompts = append(r.prompts, p)
	r.mu.Unlock()

	return r.answer, r.err
}

type stubDocuments struct {
	url string
	err error

	kinds []string
	data  []document.Data
}

func (d *stubDocuments) GenerateQuote(_ context.Context, _ string, _ string, data document.Data) (string, error) {
	d.kinds = append(d.kinds, document.KindQuote)
	d.data = append(d.data, data)
	return d.url, d.err
}

func (d *stubDocuments) GenerateInvoice(_ context.Context, _ string, _ string, data document.Data) (string, error) {
	d.kinds = append(d.kinds, document.KindInvoice)
	d.data = append(d.data, data)
	return d.url, d.err
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Deps{}, Options{})
	require.Error(t, err)

	_, err = New(Deps{Tenants: &config.Config{}, Catalog: catalog.New(nil), Cart: cart.NewMemory(nil), Leads: lead.NewMemory()}, Options{})
	require.Error(t, err, "funnel machine is required")
}

func TestSearchListsMatchingProducts(t *testing.T) {
	f := newFixture(t)

	reply := f.say("найди цемент")

	assert.Equal(t, string(intent.Search), reply.Metadata[MetaIntent])
	assert.Contains(t, reply.Content, "Цемент М400")
	assert.Contains(t, reply.Content, "2 500 KZT")
	assert.Contains(t, reply.Content, "Цемент М500")
	assert.Contains(t, reply.Content, "3 100 KZT")
	assert.NotContains(t, reply.Content, "Гипсокартон")
	require.Len(t, reply.Attachments, 1)
	assert.Equal(t, bus.AttachmentPhoto, reply.Attachments[0].Kind)
	assert.Equal(t, "https://cdn.example/cm400.jpg", reply.Attachments[0].URL)
	assert.Equal(t, bus.ChannelTelegram, reply.Channel)
	assert.Equal(t, "100", reply.ChatID)
}

func TestSearchAppliesPriceCeiling(t *testing.T) {
	f := newFixture(t)

	reply := f.say("найди цемент до 3000 тенге")

	assert.Contains(t, reply.Content, "Цемент М400")
	assert.NotContains(t, reply.Content, "Цемент М500")
}

func TestSearchReportsNothingFound(t *testing.T) {
	f := newFixture(t)

	reply := f.say("найди перфоратор")

	assert.Contains(t, reply.Content, "перфоратор")
	assert.Empty(t, reply.Attachments)
}

func TestSearchWithoutQueryAsksForOne(t *testing.T) {
	f := newFixture(t)

	reply := f.say("найди")

	assert.Equal(t, TextsFor(bus.LangRU).SearchNeedsQuery, reply.Content)
}

func TestStopCancelsOpenFunnel(t *testing.T) {
	f := newFixture(t)

	first := f.say("привет")
	assert.Equal(t, funnel.Prompt(bus.LangRU, 1), first.Content)
	assert.Equal(t, "1", first.Metadata[MetaFunnelStep])
	require.True(t, f.funnel.Has(f.key()))

	reply := f.say("стоп")

	assert.Equal(t, TextsFor(bus.LangRU).Handoff, reply.Content)
	assert.False(t, f.funnel.Has(f.key()))
	assert.Equal(t, "0", reply.Metadata[MetaFunnelStep])
}

func TestFunnelRoundTripCapturesLead(t *testing.T) {
	f := newFixture(t)
	events, unsubscribe := f.bus.SubscribeEvents(context.Background(), 64)
	defer unsubscribe()

	assert.Equal(t, funnel.Prompt(bus.LangRU, 1), f.say("привет").Content)
	assert.Equal(t, funnel.Prompt(bus.LangRU, 2), f.say("цемент").Content)
	assert.Equal(t, funnel.Prompt(bus.LangRU, 3), f.say("20 мешков").Content)

	summary := f.say("до 50000 тенге")
	assert.Contains(t, summary.Content, "цемент")
	assert.Contains(t, summary.Content, "20 мешков")
	assert.Contains(t, summary.Content, "до 50000 тенге")
	assert.False(t, f.funnel.Has(f.key()))

	leads := f.leads.List(tenantID)
	require.Len(t, leads, 1)
	assert.Equal(t, lead.SourceFunnel, leads[0].Source)
	assert.Equal(t, "цемент", leads[0].Notes[funnel.SlotWhat])
	assert.Equal(t, "100", leads[0].ChatID)
	assert.Equal(t, bus.ChannelTelegram, leads[0].Channel)

	assert.True(t, sawEvent(events, bus.EventFunnelCompleted))
}

func TestFunnelDoesNotSwallowExplicitCommands(t *testing.T) {
	f := newFixture(t)

	f.say("привет")
	reply := f.say("найди цемент")

	assert.Contains(t, reply.Content, "Цемент М400")
	assert.True(t, f.funnel.Has(f.key()))
	assert.Equal(t, "1", reply.Metadata[MetaFunnelStep])
}

func TestFunnelTakesProductNounFallbackAsAnswer(t *testing.T) {
	f := newFixture(t, withCatalog(failingCatalog{}))

	f.say("привет")
	reply := f.say("цемент 5 шт")

	assert.Equal(t, funnel.Prompt(bus.LangRU, 2), reply.Content)
	assert.Equal(t, string(intent.Search), reply.Metadata[MetaIntent])
	assert.Equal(t, "2", reply.Metadata[MetaFunnelStep])
	assert.Empty(t, reply.Error, "the catalog is not consulted")
}

func TestCollaboratorFailureYieldsApology(t *testing.T) {
	f := newFixture(t, withCatalog(failingCatalog{}))
	events, unsubscribe := f.bus.SubscribeEvents(context.Background(), 64)
	defer unsubscribe()

	reply := f.say("найди цемент")

	assert.Equal(t, TextsFor(bus.LangRU).Apology, reply.Content)
	assert.NotEmpty(t, reply.Error)
	assert.True(t, sawEvent(events, bus.EventCollaboratorFailed))
}

func TestCollaboratorPanicYieldsApology(t *testing.T) {
	f := newFixture(t, withCatalog(panickingCatalog{}))

	reply := f.say("найди цемент")

	assert.Equal(t, TextsFor(bus.LangRU).Apology, reply.Content)
	assert.Contains(t, reply.Error, "index corrupted")
}

func TestCollaboratorTimeoutYieldsApology(t *testing.T) {
	f := newFixture(t, withCatalog(slowCatalog{}))
	f.orch.timeout = 20 * time.Millisecond

	reply := f.say("найди цемент")

	assert.Equal(t, TextsFor(bus.LangRU).Apology, reply.Content)
	assert.Contains(t, reply.Error, context.DeadlineExceeded.Error())
}

func TestCollaboratorIgnoringContextIsCutOff(t *testing.T) {
	f := newFixture(t, withCatalog(stubbornCatalog{delay: 500 * time.Millisecond}))
	f.orch.timeout = 20 * time.Millisecond

	start := time.Now()
	reply := f.say("найди цемент")

	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.Equal(t, TextsFor(bus.LangRU).Apology, reply.Content)
	assert.Contains(t, reply.Error, context.DeadlineExceeded.Error())
	assert.Empty(t, reply.Attachments)
}

func TestKazakhRepliesUseKazakhTexts(t *testing.T) {
	f := newFixture(t, withCatalog(failingCatalog{}))

	reply := f.orch.Handle(context.Background(), bus.InboundMessage{
		TenantID: tenantID,
		Channel:  bus.ChannelWhatsApp,
		ChatID:   "77010000000",
		Lang:     "kz",
		Kind:     bus.KindText,
		Content:  "цемент іздеймін",
	})

	assert.Equal(t, TextsFor(bus.LangKK).Apology, reply.Content)
}

func TestMalformedMessageGetsHelp(t *testing.T) {
	f := newFixture(t)

	for _, msg := range []bus.InboundMessage{
		{TenantID: tenantID, Channel: bus.ChannelTelegram, ChatID: "1", Kind: bus.KindText},
		{TenantID: tenantID, Channel: bus.ChannelTelegram, ChatID: "1", Kind: bus.KindVoice, MediaURL: "https://files/voice.ogg"},
		{TenantID: tenantID, Channel: bus.ChannelTelegram, ChatID: "1", Kind: "sticker", Content: "🙂"},
		{},
	} {
		reply := f.orch.Handle(context.Background(), msg)
		assert.Equal(t, TextsFor(bus.LangRU).Help, reply.Content)
		assert.Equal(t, string(intent.Help), reply.Metadata[MetaIntent])
	}
}

func TestCartCheckoutFlow(t *testing.T) {
	f := newFixture(t)
	events, unsubscribe := f.bus.SubscribeEvents(context.Background(), 64)
	defer unsubscribe()

	added := f.say("добавь CM-400 2 шт")
	assert.Contains(t, added.Content, "Цемент М400 × 2")

	again := f.say("добавь CM-400 1 шт")
	assert.Contains(t, again.Content, "Цемент М400 × 3")

	f.say("добавь в корзину гипсокартон")

	cartReply := f.say("корзина")
	assert.Contains(t, cartReply.Content, "Цемент М400 × 3")
	assert.Contains(t, cartReply.Content, "Гипсокартон 12,5 мм × 1")
	assert.Contains(t, cartReply.Content, "НДС 12%: 1 248 KZT")
	assert.Contains(t, cartReply.Content, "Итого: 11 648 KZT")

	order := f.say("/order")
	assert.Equal(t, string(intent.Checkout), order.Metadata[MetaIntent])
	require.NotEmpty(t, order.Metadata["lead_id"])
	assert.Contains(t, order.Content, lead.ShortID(order.Metadata["lead_id"]))
	assert.Contains(t, order.Content, "Итого: 11 648 KZT")
	assert.Empty(t, f.cart.Items(f.key()))

	leads := f.leads.List(tenantID)
	require.Len(t, leads, 1)
	assert.Equal(t, lead.SourceCheckout, leads[0].Source)
	assert.Equal(t, "Айгерим", leads[0].Name)
	assert.InDelta(t, 11648.0, leads[0].Sum, 0.001)
	assert.Len(t, leads[0].Items, 2)

	assert.True(t, sawEvent(events, bus.EventLeadCreated))
}

func TestProductQuestionsWithCartDoNotFileLeads(t *testing.T) {
	f := newFixture(t)

	f.say("добавь CM-400")
	for _, text := range []string{"нужен счетчик воды", "хочу сметану", "есть ли очиститель"} {
		reply := f.say(text)
		assert.Equal(t, string(intent.Search), reply.Metadata[MetaIntent], text)
		assert.Empty(t, reply.Metadata["lead_id"], text)
	}

	assert.Empty(t, f.leads.List(tenantID))
	assert.Len(t, f.cart.Items(f.key()), 1)
}

func TestCheckoutWithEmptyCart(t *testing.T) {
	f := newFixture(t)

	reply := f.say("оформи заказ")

	assert.Equal(t, TextsFor(bus.LangRU).CheckoutEmpty, reply.Content)
	assert.Empty(t, f.leads.List(tenantID))
}

func TestCheckoutLeadFailureKeepsCart(t *testing.T) {
	f := newFixture(t, withLeads(failingLeads{}))

	f.say("добавь CM-500")
	reply := f.say("оформи заказ")

	assert.Equal(t, TextsFor(bus.LangRU).Apology, reply.Content)
	assert.Len(t, f.cart.Items(f.key()), 1)
}

func TestAddUnknownProduct(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, TextsFor(bus.LangRU).AddNeedsProduct, f.say("добавь в корзину").Content)
	assert.Contains(t, f.say("добавь перфоратор").Content, "перфоратор")
	assert.Empty(t, f.cart.Items(f.key()))
}

func TestRemoveAndClearCart(t *testing.T) {
	f := newFixture(t)

	f.say("добавь CM-400")
	f.say("добавь GK-12")

	removed := f.say("удали гипсокартон")
	assert.Contains(t, removed.Content, "Гипсокартон")
	require.Len(t, f.cart.Items(f.key()), 1)

	assert.Equal(t, TextsFor(bus.LangRU).RemoveNotFound, f.say("удали краску").Content)

	assert.Equal(t, TextsFor(bus.LangRU).Cleared, f.say("очисти корзину").Content)
	assert.Empty(t, f.cart.Items(f.key()))
}

func TestQuoteAttachesDocument(t *testing.T) {
	docs := &stubDocuments{url: "https://docs.example/stroymart/quote-1.txt"}
	f := newFixture(t, withDocuments(docs))

	f.say("добавь CM-400 4 шт")
	reply := f.say("/quote")

	require.Len(t, reply.Attachments, 1)
	assert.Equal(t, bus.AttachmentDocument, reply.Attachments[0].Kind)
	assert.Equal(t, docs.url, reply.Attachments[0].URL)
	assert.Contains(t, reply.Content, lead.ShortID(reply.Metadata["lead_id"]))
	assert.Equal(t, []string{document.KindQuote}, docs.kinds)
	assert.Equal(t, "СтройМарт", docs.data[0].TenantName)
	assert.Len(t, f.cart.Items(f.key()), 1, "a quote keeps the cart")

	leads := f.leads.List(tenantID)
	require.Len(t, leads, 1)
	assert.Equal(t, lead.SourceQuote, leads[0].Source)
}

func TestInvoiceFallsBackWhenRenderingFails(t *testing.T) {
	docs := &stubDocuments{err: errors.New("disk full")}
	f := newFixture(t, withDocuments(docs))

	f.say("добавь CM-400")
	reply := f.say("выставите счёт")

	assert.Empty(t, reply.Attachments)
	assert.Contains(t, reply.Content, lead.ShortID(reply.Metadata["lead_id"]))
	assert.Equal(t, []string{document.KindInvoice}, docs.kinds)
	assert.Equal(t, lead.SourceInvoice, f.leads.List(tenantID)[0].Source)
}

func TestQuoteWithoutDocumentService(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, TextsFor(bus.LangRU).QuoteNeedsCart, f.say("/quote").Content)

	f.say("добавь CM-400")
	reply := f.say("/quote")
	assert.Empty(t, reply.Attachments)
	assert.Contains(t, reply.Content, lead.ShortID(reply.Metadata["lead_id"]))
}

func TestTenantInfoReplies(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "Доставка по Алматы бесплатно от 50 000 тг.", f.say("есть доставка?").Content)
	assert.Equal(t, TextsFor(bus.LangRU).PromoDefault, f.say("есть скидки?").Content)

	address := f.say("какой у вас адрес")
	assert.Contains(t, address.Content, TextsFor(bus.LangRU).AddressDefault)
	assert.Contains(t, address.Content, "+7 727 000 00 00")
}

func TestCallbackCapturesPhone(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, TextsFor(bus.LangRU).CallbackNoPhone, f.say("перезвоните мне").Content)
	assert.Empty(t, f.leads.List(tenantID))

	reply := f.say("перезвоните мне +7 701 123 45 67")
	assert.Equal(t, TextsFor(bus.LangRU).CallbackDone, reply.Content)

	leads := f.leads.List(tenantID)
	require.Len(t, leads, 1)
	assert.Equal(t, lead.SourceCallback, leads[0].Source)
	assert.Equal(t, "+77011234567", leads[0].Phone)
}

func TestUnknownUsesResponderBeforeFunnel(t *testing.T) {
	responder := &stubResponder{answer: "Здравствуйте! Чем помочь?"}
	f := newFixture(t, withResponder(responder))

	reply := f.say("привет")

	assert.Equal(t, "Здравствуйте! Чем помочь?", reply.Content)
	assert.False(t, f.funnel.Has(f.key()))
	require.Len(t, responder.prompts, 1)
	assert.Equal(t, f.key(), responder.prompts[0].ConversationID)
	assert.Equal(t, bus.LangRU, responder.prompts[0].Lang)
}

func TestResponderFailureFallsBackToFunnel(t *testing.T) {
	for name, responder := range map[string]*stubResponder{
		"error": {err: errors.New("rate limited")},
		"empty": {answer: "  "},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, withResponder(responder))

			reply := f.say("привет")

			assert.Equal(t, funnel.Prompt(bus.LangRU, 1), reply.Content)
			assert.True(t, f.funnel.Has(f.key()))
			assert.Empty(t, reply.Error)
		})
	}
}

func TestConversationsAreIsolated(t *testing.T) {
	f := newFixture(t)

	f.say("привет")

	other := f.orch.Handle(context.Background(), bus.InboundMessage{
		TenantID: tenantID,
		Channel:  bus.ChannelTelegram,
		ChatID:   "200",
		Kind:     bus.KindText,
		Content:  "привет",
	})

	assert.Equal(t, funnel.Prompt(bus.LangRU, 1), other.Content)
	assert.Equal(t, 1, f.funnel.Step(f.key()))
}

func TestHandleMessageNeverFails(t *testing.T) {
	f := newFixture(t, withCatalog(failingCatalog{}))

	reply, err := f.orch.HandleMessage(context.Background(), bus.InboundMessage{
		TenantID: tenantID, Channel: bus.ChannelTelegram, ChatID: "1", Kind: bus.KindText, Content: "найди цемент",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, reply.Content)
}

func TestFormatMoney(t *testing.T) {
	tests := map[float64]string{
		0:          "0",
		999:        "999",
		2500:       "2 500",
		1234567.5:  "1 234 567,50",
		11648:      "11 648",
		1248.004:   "1 248",
		-1500.25:   "-1 500,25",
		100000.999: "100 001",
	}

	for in, want := range tests {
		assert.Equal(t, want, formatMoney(in), "formatMoney(%v)", in)
	}
}

func TestExtractPhone(t *testing.T) {
	assert.Equal(t, "+77011234567", extractPhone("мой номер +7 (701) 123-45-67"))
	assert.Equal(t, "87011234567", extractPhone("8 701 123 45 67 после обеда"))
	assert.Equal(t, "", extractPhone("нужно 20 мешков"))
	assert.Equal(t, "", extractPhone(""))
}

func TestTextsForFallsBackToRussian(t *testing.T) {
	assert.Equal(t, TextsFor(bus.LangRU), TextsFor("en"))
	assert.Equal(t, TextsFor(bus.LangKK), TextsFor("kz"))

	for _, lang := range []string{bus.LangRU, bus.LangKK} {
		texts := TextsFor(lang)
		assert.True(t, strings.TrimSpace(texts.Help) != "" && strings.TrimSpace(texts.Apology) != "", lang)
	}
}

func sawEvent(events <-chan bus.Event, want bus.EventType) bool {
	for {
		select {
		case event := <-events:
			if event.Type == want {
				return true
			}
		default:
			return false
		}
	}
}
