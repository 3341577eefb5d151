package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"salesbot/pkg/intent"
)

func TestWriteParsedPrintsIntentAndEntities(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if err := writeParsed(&out, "добавь в корзину цемент 2 шт", "ru"); err != nil {
		t.Fatalf("writeParsed error: %v", err)
	}

	var view parsedView
	if err := json.Unmarshal(out.Bytes(), &view); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	if view.Intent != intent.AddToCart {
		t.Fatalf("intent = %q, want %q", view.Intent, intent.AddToCart)
	}
	if view.Entities.Qty != 2 {
		t.Fatalf("qty = %d, want 2", view.Entities.Qty)
	}
	if view.Lang != "ru" {
		t.Fatalf("lang = %q, want ru", view.Lang)
	}
}

func TestWriteParsedCanonicalizesLang(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if err := writeParsed(&out, "цемент іздеймін", "kz"); err != nil {
		t.Fatalf("writeParsed error: %v", err)
	}

	var view parsedView
	if err := json.Unmarshal(out.Bytes(), &view); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if view.Lang != "kk" || view.Intent != intent.Search {
		t.Fatalf("got lang=%q intent=%q, want kk/search", view.Lang, view.Intent)
	}
}
