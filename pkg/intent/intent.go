// Package intent classifies a customer message into a closed set of intents and
// pulls commerce entities (SKU, quantity, product name, price ceiling) out of it.
//
// Parse is pure and total: every input, including the empty string, yields a
// Parsed value and nothing panics.
package intent

import (
	"regexp"
	"strings"

	"salesbot/pkg/bus"
)

type Tag string

const (
	Search       Tag = "search"
	AddToCart    Tag = "add_to_cart"
	ShowCart     Tag = "show_cart"
	RemoveItem   Tag = "remove_item"
	ClearCart    Tag = "clear_cart"
	Checkout     Tag = "checkout"
	Quote        Tag = "quote"
	Invoice      Tag = "invoice"
	DeliveryInfo Tag = "delivery_info"
	Promo        Tag = "promo"
	Address      Tag = "address"
	Callback     Tag = "callback"
	Help         Tag = "help"
	Stop         Tag = "stop"
	Unknown      Tag = "unknown"
)

// Tags is the closed enumeration of intent tags.
var Tags = []Tag{
	Search, AddToCart, ShowCart, RemoveItem, ClearCart, Checkout, Quote, Invoice,
	DeliveryInfo, Promo, Address, Callback, Help, Stop, Unknown,
}

// Valid reports whether t belongs to the closed enumeration.
func (t Tag) Valid() bool {
	for _, tag := range Tags {
		if tag == t {
			return true
		}
	}

	return false
}

// Entities holds whatever could be extracted; zero values mean "not present".
type Entities struct {
	SKU      string
	Qty      int
	Unit     string
	Name     string
	MaxPrice float64
}

// Parsed is the classification result for one message. It is never persisted.
type Parsed struct {
	Tag      Tag
	Entities Entities
	// Query is the catalog search phrase: the extracted name, or the message
	// with commands, quantities and price clauses removed.
	Query string
	// Fallback is set when Tag came from the product-noun default rather than
	// an explicit rule.
	Fallback bool
}

var spaceRun = regexp.MustCompile(`\s+`)

// Normalize lowercases, trims and collapses whitespace. ё is folded into е so
// keyword tables only need one spelling.
func Normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.ReplaceAll(text, "ё", "е")
	return spaceRun.ReplaceAllString(text, " ")
}

// Parse classifies text written in lang ("ru" or "kk"; other spellings are
// converted with bus.ParseLang).
func Parse(text string, lang string) Parsed {
	lang = bus.ParseLang(lang)
	normalized := Normalize(text)

	result := Parsed{Tag: Unknown}
	if normalized == "" {
		return result
	}

	result.Tag = classify(normalized, lang)
	if result.Tag == Unknown && productMarker.MatchString(normalized) {
		result.Tag = Search
		result.Fallback = true
	}

	result.Entities = extractEntities(text, normalized, lang)
	result.Query = searchQuery(normalized, lang, result.Entities)

	return result
}

// classify walks the ordered rule list; the first matching rule wins.
func classify(normalized string, lang string) Tag {
	for _, r := range rulesFor(lang) {
		if r.match(normalized) {
			return r.tag
		}
	}

	return Unknown
}
