package intent

import (
	"regexp"
	"strings"

	"salesbot/pkg/bus"
)

// keywords lists the triggers of one intent. Fragments are regexp pieces over
// normalized text; a trailing \p{L}* turns a fragment into a stem. Verbs and
// document nouns that share a stem with goods ("сметана", "счетчик",
// "очиститель") list their word forms instead.
type keywords struct {
	tag      Tag
	commands []string
	ru       []string
	kk       []string
}

// order is the tie-break policy. Checkout and the cart mutations come before
// show_cart and search so "оформи заказ" or "добавь в корзину" never fall
// through to a catalog lookup.
var order = []keywords{
	{
		tag:      Stop,
		commands: []string{"stop", "cancel"},
		ru:       []string{`стоп`, `хватит`, `отмен\p{L}*`, `оператор\p{L}*`, `менеджер\p{L}*`, `живой человек`},
		kk:       []string{`тоқта\p{L}*`, `жеткілікті`, `бас тарт\p{L}*`},
	},
	{
		tag:      Help,
		commands: []string{"help", "start", "menu"},
		ru:       []string{`помощь`, `помоги\p{L}*`, `что ты умеешь`, `что вы умеете`, `меню`},
		kk:       []string{`көмек\p{L}*`, `мәзір`},
	},
	{
		tag:      Checkout,
		commands: []string{"order", "checkout"},
		ru:       []string{`оформ\p{L}*`, `сделать заказ`, `подтвер\p{L}*`, `заказать`, `заказываю`},
		kk:       []string{`тапсырыс бер\p{L}*`, `тапсырыс жаса\p{L}*`, `рәсімде\p{L}*`, `растаймын`},
	},
	{
		tag:      ClearCart,
		commands: []string{"clear"},
		ru:       []string{`очист(?:и|ите|ить)`, `удал(?:и|ите|ить) вс\p{L}*`},
		kk:       []string{`тазала(?:ңыз|шы|у)?`},
	},
	{
		tag:      RemoveItem,
		commands: []string{"remove", "del"},
		ru:       []string{`удал(?:и|ите|ить)`, `убер(?:и|ите)`, `убрать`, `исключ(?:и|ите|ить)`},
		kk:       []string{`өшір(?:іңіз|ші|у)?`, `жой(?:ыңыз|шы)?`, `алып таста\p{L}*`},
	},
	{
		tag:      AddToCart,
		commands: []string{"add"},
		ru:       []string{`добав(?:ь|ьте|ить|лю|им)`, `полож(?:и|ите|ить)`, `в корзину`},
		kk:       []string{`қос(?:ыңыз|шы|ып|у)?`, `себетке`},
	},
	{
		tag:      ShowCart,
		commands: []string{"cart"},
		ru:       []string{`корзин\p{L}*`},
		kk:       []string{`себет\p{L}*`},
	},
	{
		tag:      Quote,
		commands: []string{"quote", "kp"},
		ru:       []string{`коммерческ\p{L}*`, `кп`, `смет(?:а|е|у|ы|ой)?`},
		kk:       []string{`коммерциялық`, `ұсыныс\p{L}*`},
	},
	{
		tag:      Invoice,
		commands: []string{"invoice", "bill"},
		ru:       []string{`счет(?:а|у|ом|е)?`, `инвойс\p{L}*`},
		kk:       []string{`шот(?:ты|қа|ы|тың)?`},
	},
	{
		tag:      DeliveryInfo,
		commands: []string{"delivery"},
		ru:       []string{`достав\p{L}*`, `привез\p{L}*`, `самовывоз\p{L}*`},
		kk:       []string{`жеткіз\p{L}*`},
	},
	{
		tag:      Promo,
		commands: []string{"promo"},
		ru:       []string{`акци\p{L}*`, `скидк\p{L}*`, `промокод\p{L}*`, `распродаж\p{L}*`},
		kk:       []string{`жеңілдік\p{L}*`},
	},
	{
		tag:      Address,
		commands: []string{"address", "contacts"},
		ru:       []string{`адрес\p{L}*`, `где вы`, `где находит\p{L}*`, `как добраться`},
		kk:       []string{`мекенжай\p{L}*`, `қайда\p{L}*`},
	},
	{
		tag:      Callback,
		commands: []string{"callback", "call"},
		ru:       []string{`перезвон\p{L}*`, `позвон\p{L}*`, `свяжитесь`, `обратн\p{L}* звон\p{L}*`},
		kk:       []string{`қоңырау\p{L}*`, `хабарлас\p{L}*`},
	},
	{
		tag:      Search,
		commands: []string{"search", "find", "catalog"},
		ru: []string{
			`найд\p{L}*`, `найти`, `ищу`, `ищем`, `поиск\p{L}*`, `нужен`, `нужна`, `нужно`, `нужны`,
			`хочу`, `есть ли`, `покаж\p{L}*`, `подбер\p{L}*`, `сколько стоит`, `цен\p{L}*`,
		},
		kk: []string{`ізде\p{L}*`, `тауып`, `табу`, `керек`, `қажет`, `бағасы`, `қанша тұрады`, `көрсет\p{L}*`, `бар ма`},
	},
}

type rule struct {
	tag     Tag
	pattern *regexp.Regexp
}

func (r rule) match(normalized string) bool {
	return r.pattern.MatchString(normalized)
}

var compiledRules = map[string][]rule{
	bus.LangRU: compileRules(bus.LangRU),
	bus.LangKK: compileRules(bus.LangKK),
}

// productMarker triggers the search default when no rule matched: unit words
// and generic product nouns.
var productMarker = regexp.MustCompile(`(?:^|\P{L})(?:` + unitWords + `|товар\p{L}*|продукт\p{L}*|тауар\p{L}*|өнім\p{L}*)(?:\P{L}|$)`)

// Order returns the tag evaluation order. It is part of the parser contract.
func Order() []Tag {
	tags := make([]Tag, 0, len(order))
	for _, kw := range order {
		tags = append(tags, kw.tag)
	}

	return tags
}

func rulesFor(lang string) []rule {
	if rules, ok := compiledRules[lang]; ok {
		return rules
	}

	return compiledRules[bus.LangRU]
}

// compileRules builds one regexp per intent. Kazakh speakers mix in Russian,
// so the kk table also carries the Russian keywords of the same intent.
func compileRules(lang string) []rule {
	rules := make([]rule, 0, len(order))
	for _, kw := range order {
		fragments := append([]string{}, kw.ru...)
		if lang == bus.LangKK {
			fragments = append(append([]string{}, kw.kk...), kw.ru...)
		}

		alternatives := make([]string, 0, 2)
		if len(kw.commands) > 0 {
			alternatives = append(alternatives, `^/(?:`+strings.Join(kw.commands, "|")+`)(?:@\w+)?(?:\s|$)`)
		}
		if len(fragments) > 0 {
			alternatives = append(alternatives, `(?:^|\P{L})(?:`+strings.Join(fragments, "|")+`)(?:\P{L}|$)`)
		}

		rules = append(rules, rule{
			tag:     kw.tag,
			pattern: regexp.MustCompile(strings.Join(alternatives, "|")),
		})
	}

	return rules
}
