package document

import (
	"fmt"
	"math"
	"text/template"
	"time"

	"salesbot/pkg/bus"
)

var funcs = template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"pct":   func(v float64) string { return fmt.Sprintf("%g", math.Round(v*10000)/100) },
	"date":  func(v time.Time) string { return v.Format("02.01.2006") },
}

const itemsBlock = `{{range $i, $it := .Items}}{{inc $i}}. {{$it.Name}} ({{$it.SKU}}) {{$it.Qty}} x {{money $it.Price}} = {{money $it.Sum}} {{$.Totals.Currency}}
{{end}}`

const quoteRU = `КОММЕРЧЕСКОЕ ПРЕДЛОЖЕНИЕ № {{.Number}} от {{date .Date}}
{{.TenantName}}{{if .Phone}}, тел. {{.Phone}}{{end}}{{if .Address}}, {{.Address}}{{end}}
{{if .Customer}}Клиент: {{.Customer}}
{{end}}
` + itemsBlock + `
Сумма без НДС: {{money .Totals.Subtotal}} {{.Totals.Currency}}
НДС {{pct .VATRate}}%: {{money .Totals.VAT}} {{.Totals.Currency}}
Итого: {{money .Totals.Total}} {{.Totals.Currency}}

Предложение действительно 5 рабочих дней.
`

const invoiceRU = `СЧЁТ НА ОПЛАТУ № {{.Number}} от {{date .Date}}
Поставщик: {{.TenantName}}{{if .Address}}, {{.Address}}{{end}}
{{if .Customer}}Покупатель: {{.Customer}}
{{end}}
` + itemsBlock + `
Сумма без НДС: {{money .Totals.Subtotal}} {{.Totals.Currency}}
НДС {{pct .VATRate}}%: {{money .Totals.VAT}} {{.Totals.Currency}}
К оплате: {{money .Totals.Total}} {{.Totals.Currency}}
`

const quoteKK = `КОММЕРЦИЯЛЫҚ ҰСЫНЫС № {{.Number}}, {{date .Date}}
{{.TenantName}}{{if .Phone}}, тел. {{.Phone}}{{end}}{{if .Address}}, {{.Address}}{{end}}
{{if .Customer}}Клиент: {{.Customer}}
{{end}}
` + itemsBlock + `
ҚҚС-сыз сома: {{money .Totals.Subtotal}} {{.Totals.Currency}}
ҚҚС {{pct .VATRate}}%: {{money .Totals.VAT}} {{.Totals.Currency}}
Барлығы: {{money .Totals.Total}} {{.Totals.Currency}}

Ұсыныс 5 жұмыс күні жарамды.
`

const invoiceKK = `ТӨЛЕМ ШОТЫ № {{.Number}}, {{date .Date}}
Жеткізуші: {{.TenantName}}{{if .Address}}, {{.Address}}{{end}}
{{if .Customer}}Сатып алушы: {{.Customer}}
{{end}}
` + itemsBlock + `
ҚҚС-сыз сома: {{money .Totals.Subtotal}} {{.Totals.Currency}}
ҚҚС {{pct .VATRate}}%: {{money .Totals.VAT}} {{.Totals.Currency}}
Төлеуге: {{money .Totals.Total}} {{.Totals.Currency}}
`

var templates = map[string]map[string]*template.Template{
	bus.LangRU: {
		KindQuote:   mustParse("quote_ru", quoteRU),
		KindInvoice: mustParse("invoice_ru", invoiceRU),
	},
	bus.LangKK: {
		KindQuote:   mustParse("quote_kk", quoteKK),
		KindInvoice: mustParse("invoice_kk", invoiceKK),
	},
}

func mustParse(name string, text string) *template.Template {
	fm := template.FuncMap{"inc": func(i int) int { return i + 1 }}
	for k, v := range funcs {
		fm[k] = v
	}

	return template.Must(template.New(name).Funcs(fm).Parse(text))
}
