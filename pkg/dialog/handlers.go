package dialog

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"salesbot/pkg/bus"
	"salesbot/pkg/cart"
	"salesbot/pkg/catalog"
	"salesbot/pkg/document"
	"salesbot/pkg/lead"
	"salesbot/pkg/provider"
)

// priceFilterFactor widens the catalog query when results get filtered by a
// price ceiling afterwards.
const priceFilterFactor = 4

var phonePattern = regexp.MustCompile(`\+?\d[\d\s\-()]{9,}\d`)

func (o *Orchestrator) handleSearch(t *turn) error {
	e := t.parsed.Entities
	query := t.parsed.Query

	var products []catalog.Product
	if e.SKU != "" {
		product, err := o.productBySKU(t, e.SKU)
		if err != nil {
			return err
		}
		if product != nil {
			products = append(products, *product)
		}
	}

	if len(products) == 0 {
		if query == "" {
			query = e.SKU
		}
		if query == "" {
			t.reply.Content = t.texts.SearchNeedsQuery
			return nil
		}

		limit := o.searchLimit
		if e.MaxPrice > 0 {
			limit *= priceFilterFactor
		}

		found, err := o.search(t, query, limit)
		if err != nil {
			return err
		}
		products = found
	}

	if e.MaxPrice > 0 {
		products = underPrice(products, e.MaxPrice)
	}
	if len(products) > o.searchLimit {
		products = products[:o.searchLimit]
	}

	if len(products) == 0 {
		shown := query
		if shown == "" {
			shown = e.SKU
		}
		t.reply.Content = fmt.Sprintf(t.texts.NotFound, shown)
		return nil
	}

	var b strings.Builder
	if e.MaxPrice > 0 {
		b.WriteString(fmt.Sprintf(t.texts.PriceCeiling, formatMoney(e.MaxPrice), t.tenant.Currency))
		b.WriteString("\n")
	}
	b.WriteString(t.texts.SearchHeader)
	for i, p := range products {
		b.WriteString(fmt.Sprintf("\n%d. %s — %s %s (%s)", i+1, p.Name, formatMoney(p.Price), o.currency(t, p.Currency), p.SKU))
	}
	b.WriteString("\n\n")
	b.WriteString(t.texts.SearchFooter)
	t.reply.Content = b.String()

	for _, p := range products {
		if strings.TrimSpace(p.PhotoURL) != "" {
			t.reply.Attachments = append(t.reply.Attachments, bus.Attachment{
				Kind:    bus.AttachmentPhoto,
				URL:     p.PhotoURL,
				Caption: p.Name,
			})
			break
		}
	}

	return nil
}

func (o *Orchestrator) handleAddToCart(t *turn) error {
	e := t.parsed.Entities

	product, err := o.resolveProduct(t)
	if err != nil {
		return err
	}
	if product == nil {
		wanted := t.parsed.Query
		if wanted == "" {
			wanted = e.SKU
		}
		if wanted == "" {
			t.reply.Content = t.texts.AddNeedsProduct
			return nil
		}
		t.reply.Content = fmt.Sprintf(t.texts.AddNotFound, wanted)
		return nil
	}

	qty := e.Qty
	if qty < 1 {
		qty = 1
	}

	line := o.cart.Add(t.key, cart.Item{
		SKU:      product.SKU,
		Name:     product.Name,
		Price:    product.Price,
		Currency: o.currency(t, product.Currency),
	}, qty)

	t.reply.Content = fmt.Sprintf(t.texts.Added, line.Name, line.Qty, len(o.cart.Items(t.key)))
	return nil
}

func (o *Orchestrator) handleShowCart(t *turn) error {
	items := o.cart.Items(t.key)
	if len(items) == 0 {
		t.reply.Content = t.texts.CartEmpty
		return nil
	}

	var b strings.Builder
	b.WriteString(t.texts.CartHeader)
	for i, item := range items {
		b.WriteString(fmt.Sprintf("\n%d. %s × %d — %s %s", i+1, item.Name, item.Qty, formatMoney(item.Sum()), o.currency(t, item.Currency)))
	}
	b.WriteString("\n\n")
	b.WriteString(o.totalsBlock(t))
	t.reply.Content = b.String()

	return nil
}

func (o *Orchestrator) handleRemoveItem(t *turn) error {
	items := o.cart.Items(t.key)
	if len(items) == 0 {
		t.reply.Content = t.texts.CartEmpty
		return nil
	}

	e := t.parsed.Entities
	if e.SKU == "" && t.parsed.Query == "" {
		t.reply.Content = t.texts.RemoveNeedsItem
		return nil
	}

	target, ok := findLine(items, e.SKU, t.parsed.Query)
	if !ok || !o.cart.Remove(t.key, target.SKU) {
		t.reply.Content = t.texts.RemoveNotFound
		return nil
	}

	t.reply.Content = fmt.Sprintf(t.texts.Removed, target.Name)
	return nil
}

func (o *Orchestrator) handleClearCart(t *turn) error {
	o.cart.Clear(t.key)
	t.reply.Content = t.texts.Cleared
	return nil
}

func (o *Orchestrator) handleCheckout(t *turn) error {
	items := o.cart.Items(t.key)
	if len(items) == 0 {
		t.reply.Content = t.texts.CheckoutEmpty
		return nil
	}

	totals := o.cart.Totals(t.key, t.tenant.VATRate, t.tenant.PricesIncludeVAT)
	block := o.totalsBlock(t)

	id, err := o.createLead(t, lead.SourceCheckout, items, totals)
	if err != nil {
		return err
	}

	o.cart.Clear(t.key)
	t.reply.Content = fmt.Sprintf(t.texts.CheckoutDone, lead.ShortID(id), block)
	t.reply.Metadata["lead_id"] = id
	return nil
}

func (o *Orchestrator) handleQuote(t *turn) error {
	return o.handleDocument(t, document.KindQuote)
}

func (o *Orchestrator) handleInvoice(t *turn) error {
	return o.handleDocument(t, document.KindInvoice)
}

// handleDocument files a lead for the cart and renders the document for it.
// A failed render still confirms the lead, since the manager can send the
// document by hand.
func (o *Orchestrator) handleDocument(t *turn, kind string) error {
	needsCart, done, source := t.texts.QuoteNeedsCart, t.texts.QuoteDone, lead.SourceQuote
	if kind == document.KindInvoice {
		needsCart, done, source = t.texts.InvoiceNeedsCart, t.texts.InvoiceDone, lead.SourceInvoice
	}

	items := o.cart.Items(t.key)
	if len(items) == 0 {
		t.reply.Content = needsCart
		return nil
	}

	totals := o.cart.Totals(t.key, t.tenant.VATRate, t.tenant.PricesIncludeVAT)
	id, err := o.createLead(t, source, items, totals)
	if err != nil {
		return err
	}
	t.reply.Metadata["lead_id"] = id
	number := lead.ShortID(id)

	if o.documents == nil {
		t.reply.Content = fmt.Sprintf(t.texts.DocumentUnavailable, number)
		return nil
	}

	if totals.Currency == "" {
		totals.Currency = t.tenant.Currency
	}
	data := document.Data{
		TenantName: t.tenant.Name,
		Phone:      t.tenant.Phone,
		Address:    t.tenant.Address,
		Lang:       t.lang,
		Customer:   t.msg.SenderName,
		Items:      items,
		Totals:     totals,
		VATRate:    t.tenant.VATRate,
		Date:       time.Now(),
	}

	op := "document." + kind
	url, err := invoke(o, t, op, func(ctx context.Context) (string, error) {
		if kind == document.KindInvoice {
			return o.documents.GenerateInvoice(ctx, t.msg.TenantID, id, data)
		}
		return o.documents.GenerateQuote(ctx, t.msg.TenantID, id, data)
	})
	if err != nil {
		o.report(t, op, err)
		url = ""
	}

	if strings.TrimSpace(url) == "" {
		t.reply.Content = fmt.Sprintf(t.texts.DocumentUnavailable, number)
		return nil
	}

	caption := fmt.Sprintf(done, number)
	t.reply.Content = caption
	t.reply.Attachments = append(t.reply.Attachments, bus.Attachment{
		Kind:    bus.AttachmentDocument,
		URL:     url,
		Caption: caption,
	})

	return nil
}

func (o *Orchestrator) handleDeliveryInfo(t *turn) error {
	t.reply.Content = firstNonEmpty(t.tenant.Delivery, t.texts.DeliveryDefault)
	return nil
}

func (o *Orchestrator) handlePromo(t *turn) error {
	t.reply.Content = firstNonEmpty(t.tenant.Promo, t.texts.PromoDefault)
	return nil
}

func (o *Orchestrator) handleAddress(t *turn) error {
	text := firstNonEmpty(t.tenant.Address, t.texts.AddressDefault)
	if phone := strings.TrimSpace(t.tenant.Phone); phone != "" {
		text += "\n" + fmt.Sprintf(t.texts.PhoneLine, phone)
	}

	t.reply.Content = text
	return nil
}

func (o *Orchestrator) handleCallback(t *turn) error {
	phone := extractPhone(t.msg.Content)
	if phone == "" {
		t.reply.Content = t.texts.CallbackNoPhone
		return nil
	}

	l := o.baseLead(t, lead.SourceCallback)
	l.Phone = phone

	id, err := o.saveLead(t, l)
	if err != nil {
		return err
	}

	t.reply.Content = t.texts.CallbackDone
	t.reply.Metadata["lead_id"] = id
	return nil
}

func (o *Orchestrator) handleHelp(t *turn) error {
	t.reply.Content = t.texts.Help
	return nil
}

func (o *Orchestrator) handleStop(t *turn) error {
	o.funnel.Cancel(t.key)
	t.reply.Content = t.texts.Handoff
	return nil
}

// handleUnknown asks the AI responder first. No responder, an empty answer or
// a failed call fall back to the qualification funnel.
func (o *Orchestrator) handleUnknown(t *turn) error {
	if o.responder != nil {
		answer, err := invoke(o, t, "ai.generate", func(ctx context.Context) (string, error) {
			return o.responder.Generate(ctx, provider.Prompt{
				ConversationID: t.key,
				Instructions:   t.tenant.AIInstructions,
				Lang:           t.lang,
				Text:           t.msg.Content,
			})
		})
		if err != nil {
			o.report(t, "ai.generate", err)
		} else if strings.TrimSpace(answer) != "" {
			t.reply.Content = strings.TrimSpace(answer)
			return nil
		}
	}

	t.reply.Content = o.funnel.Start(t.key, t.lang)
	return nil
}

func (o *Orchestrator) productBySKU(t *turn, sku string) (*catalog.Product, error) {
	return invoke(o, t, "catalog.get_by_sku", func(ctx context.Context) (*catalog.Product, error) {
		return o.catalog.GetBySKU(ctx, t.msg.TenantID, sku)
	})
}

func (o *Orchestrator) search(t *turn, query string, limit int) ([]catalog.Product, error) {
	return invoke(o, t, "catalog.search", func(ctx context.Context) ([]catalog.Product, error) {
		return o.catalog.Search(ctx, t.msg.TenantID, query, limit)
	})
}

// resolveProduct finds the product a cart command refers to: the SKU when one
// was given and known, otherwise the best search hit for the query.
func (o *Orchestrator) resolveProduct(t *turn) (*catalog.Product, error) {
	if sku := t.parsed.Entities.SKU; sku != "" {
		product, err := o.productBySKU(t, sku)
		if err != nil || product != nil {
			return product, err
		}
	}

	if t.parsed.Query == "" {
		return nil, nil
	}

	products, err := o.search(t, t.parsed.Query, 1)
	if err != nil || len(products) == 0 {
		return nil, err
	}

	return &products[0], nil
}

func (o *Orchestrator) baseLead(t *turn, source string) lead.Lead {
	return lead.Lead{
		TenantID: t.msg.TenantID,
		Channel:  t.msg.Channel,
		ChatID:   t.msg.ChatID,
		Name:     t.msg.SenderName,
		Phone:    extractPhone(t.msg.Content),
		Currency: t.tenant.Currency,
		Source:   source,
	}
}

func (o *Orchestrator) createLead(t *turn, source string, items []cart.Item, totals cart.Totals) (string, error) {
	l := o.baseLead(t, source)
	l.Items = items
	l.Sum = totals.Total
	if totals.Currency != "" {
		l.Currency = totals.Currency
	}

	return o.saveLead(t, l)
}

func (o *Orchestrator) saveLead(t *turn, l lead.Lead) (string, error) {
	id, err := invoke(o, t, "lead.create", func(ctx context.Context) (string, error) {
		return o.leads.Create(ctx, l)
	})
	if err != nil {
		return "", err
	}

	o.publish(t, bus.EventLeadCreated, map[string]string{"lead_id": id, "source": l.Source}, "")
	o.log.Info("Lead created", "tenant_id", l.TenantID, "chat_id", l.ChatID, "lead_id", id, "source", l.Source)

	return id, nil
}

// totalsBlock renders the cart totals. VAT lines are omitted for tenants
// without VAT.
func (o *Orchestrator) totalsBlock(t *turn) string {
	totals := o.cart.Totals(t.key, t.tenant.VATRate, t.tenant.PricesIncludeVAT)
	currency := o.currency(t, totals.Currency)

	if t.tenant.VATRate <= 0 {
		return fmt.Sprintf(t.texts.TotalLine, formatMoney(totals.Total), currency)
	}

	lines := []string{
		fmt.Sprintf(t.texts.SubtotalLine, formatMoney(totals.Subtotal), currency),
		fmt.Sprintf(t.texts.VATLine, formatRate(t.tenant.VATRate), formatMoney(totals.VAT), currency),
		fmt.Sprintf(t.texts.TotalLine, formatMoney(totals.Total), currency),
	}

	return strings.Join(lines, "\n")
}

func (o *Orchestrator) currency(t *turn, value string) string {
	return firstNonEmpty(value, t.tenant.Currency)
}

func underPrice(products []catalog.Product, ceiling float64) []catalog.Product {
	out := make([]catalog.Product, 0, len(products))
	for _, p := range products {
		if p.Price <= ceiling {
			out = append(out, p)
		}
	}

	return out
}

// findLine matches a cart line by SKU, or by a word of query prefixing a word
// of the line name.
func findLine(items []cart.Item, sku string, query string) (cart.Item, bool) {
	if sku != "" {
		for _, item := range items {
			if strings.EqualFold(item.SKU, sku) {
				return item, true
			}
		}
	}

	for _, word := range strings.Fields(strings.ToLower(query)) {
		stem := stemOf(word)
		if len([]rune(stem)) < 3 {
			continue
		}
		for _, item := range items {
			for _, nameWord := range strings.Fields(strings.ToLower(item.Name)) {
				if strings.HasPrefix(nameWord, stem) {
					return item, true
				}
			}
		}
	}

	return cart.Item{}, false
}

// stemOf cuts a word to at most five runes, enough to absorb Russian and
// Kazakh case endings.
func stemOf(word string) string {
	word = strings.ReplaceAll(word, "ё", "е")
	runes := []rune(word)
	if len(runes) > 5 {
		runes = runes[:5]
	}

	return string(runes)
}

func extractPhone(text string) string {
	match := phonePattern.FindString(text)
	if match == "" {
		return ""
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, match)
	if len(digits) < 10 || len(digits) > 15 {
		return ""
	}

	if strings.HasPrefix(strings.TrimSpace(match), "+") {
		return "+" + digits
	}

	return digits
}

// formatMoney prints an amount with space-grouped thousands and a comma
// decimal part, dropping ",00".
func formatMoney(v float64) string {
	s := strconv.FormatFloat(math.Round(v*100)/100, 'f', 2, 64)
	whole, frac, _ := strings.Cut(s, ".")

	negative := strings.HasPrefix(whole, "-")
	whole = strings.TrimPrefix(whole, "-")

	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	if frac != "00" {
		b.WriteString("," + frac)
	}

	return b.String()
}

func formatRate(rate float64) string {
	return strconv.FormatFloat(math.Round(rate*10000)/100, 'f', -1, 64)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}

	return ""
}
