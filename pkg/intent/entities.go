package intent

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// qtyClause matches an integer followed by a unit. The number must not be
// glued to a letter or decimal point, and the unit must end on a word
// boundary so "20мм" never reads as twenty meters.
var qtyClause = regexp.MustCompile(`(?:^|[^\p{L}\p{N}.,])(\d+)\s*(` + unitWords + `)(?:[^\p{L}]|$)`)

// unitWords is the quantity unit vocabulary shared by qtyClause and the
// product-noun default.
const unitWords = `штук\p{L}*|шт|килограмм\p{L}*|кг|литр\p{L}*|л|метр\p{L}*|м|упак\p{L}*|пачк\p{L}*|пачек|коробк\p{L}*|короб\p{L}*|ящик\p{L}*|дана|қорап\p{L}*|орам\p{L}*|pcs|kg|l|m|box`

var unitPrefixes = []struct {
	prefix string
	unit   string
}{
	{"штук", "pcs"}, {"шт", "pcs"}, {"дана", "pcs"}, {"pcs", "pcs"},
	{"килограмм", "kg"}, {"кг", "kg"}, {"kg", "kg"},
	{"литр", "l"}, {"л", "l"}, {"l", "l"},
	{"метр", "m"}, {"м", "m"}, {"m", "m"},
	{"упак", "pack"}, {"пачк", "pack"}, {"пачек", "pack"}, {"орам", "pack"},
	{"короб", "box"}, {"ящик", "box"}, {"қорап", "box"}, {"box", "box"},
}

var skuExplicit = regexp.MustCompile(`(?i)(?:^|\P{L})(?:артикул|арт\.?|sku|код)\s*[:#№]?\s*([A-Za-z0-9][A-Za-z0-9_-]{2,})`)

var latinToken = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9_-]*`)

var measureToken = regexp.MustCompile(`(?i)^\d+(?:pcs|kg|mm|cm|m|l)$`)

var (
	maxPriceRU = regexp.MustCompile(`(?:^|\P{L})(?:до|не дороже|не более|не больше|максимум|макс\.?)\s*(\d[\d\s]*(?:[.,]\d+)?)`)
	maxPriceKK = []*regexp.Regexp{
		regexp.MustCompile(`(\d[\d\s]*(?:[.,]\d+)?)\s*(?:теңге\p{L}*|тг|₸)?\s*-?\s*(?:ға|ге|қа|ке)?\s+дейін`),
		regexp.MustCompile(`ең көбі\s*(\d[\d\s]*(?:[.,]\d+)?)`),
	}
)

var (
	nameTriggerRU = `найди(?:те)?|найти|ищу|ищем|нужен|нужна|нужно|нужны|надо|хочу|хотим|покажи(?:те)?|подбери(?:те)?|добавь(?:те)?|добавить|положи(?:те)?|удали(?:те)?|убери(?:те)?|есть ли|сколько стоит|цена на|цена`
	nameTriggerKK = `іздеймін|ізде(?:ңіз)?|керек|қажет|тауып бер(?:іңіз)?|көрсет(?:іңіз)?|қос(?:ыңыз)?|өшір(?:іңіз)?|бағасы`
	nameTrigger   = map[string]*regexp.Regexp{
		"ru": regexp.MustCompile(`(?:^|\P{L})(` + nameTriggerRU + `)(?:\P{L}|$)`),
		"kk": regexp.MustCompile(`(?:^|\P{L})(` + nameTriggerKK + `|` + nameTriggerRU + `)(?:\P{L}|$)`),
	}
)

var commandPrefix = regexp.MustCompile(`^/\w+(?:@\w+)?\s*`)

var fillerWords = []string{
	"пожалуйста", "мне", "нам", "еще", "в корзину", "из корзины", "маған", "бізге", "себетке", "себеттен", "тағы",
}

func extractEntities(original string, normalized string, lang string) Entities {
	var e Entities

	e.SKU = extractSKU(original)
	e.Qty, e.Unit = extractQty(normalized)
	e.MaxPrice = extractMaxPrice(normalized, lang)
	e.Name = extractName(normalized, lang)

	return e
}

func extractSKU(original string) string {
	if m := skuExplicit.FindStringSubmatch(original); m != nil {
		return strings.Trim(m[1], "-_")
	}

	for _, loc := range latinToken.FindAllStringIndex(original, -1) {
		if loc[0] > 0 {
			prev := []rune(original[:loc[0]])
			if unicode.IsLetter(prev[len(prev)-1]) {
				continue
			}
		}
		token := strings.Trim(original[loc[0]:loc[1]], "-_")
		if len(token) < 3 || measureToken.MatchString(token) {
			continue
		}
		if hasDigit(token) && hasLetter(token) {
			return token
		}
	}

	return ""
}

func extractQty(normalized string) (int, string) {
	m := qtyClause.FindStringSubmatch(normalized)
	if m == nil {
		return 0, ""
	}

	qty, err := strconv.Atoi(m[1])
	if err != nil || qty <= 0 {
		return 0, ""
	}

	return qty, canonicalUnit(m[2])
}

func canonicalUnit(word string) string {
	for _, candidate := range unitPrefixes {
		if strings.HasPrefix(word, candidate.prefix) {
			return candidate.unit
		}
	}

	return ""
}

func extractMaxPrice(normalized string, lang string) float64 {
	patterns := []*regexp.Regexp{maxPriceRU}
	if lang == "kk" {
		patterns = append(append([]*regexp.Regexp{}, maxPriceKK...), maxPriceRU)
	}

	for _, pattern := range patterns {
		if m := pattern.FindStringSubmatch(normalized); m != nil {
			if value := ParseNumber(m[1]); value > 0 {
				return value
			}
		}
	}

	return 0
}

// extractName takes the phrase after the trigger verb up to the quantity
// clause. When that is empty it tries the text after the quantity clause,
// then the text before the trigger, which covers verb-final Kazakh phrasing.
func extractName(normalized string, lang string) string {
	trigger, ok := nameTrigger[lang]
	if !ok {
		trigger = nameTrigger["ru"]
	}

	loc := trigger.FindStringSubmatchIndex(normalized)
	if loc == nil {
		return ""
	}

	before := normalized[:loc[2]]
	after := normalized[loc[3]:]

	head, tail := splitAtClause(after)
	if name := cleanName(head); name != "" {
		return name
	}
	if name := cleanName(tail); name != "" {
		return name
	}

	head, _ = splitAtClause(before)
	return cleanName(head)
}

// splitAtClause cuts text at the first quantity or price clause.
func splitAtClause(text string) (string, string) {
	cut, resume := len(text), len(text)
	for _, pattern := range append([]*regexp.Regexp{qtyClause, maxPriceRU}, maxPriceKK...) {
		if loc := pattern.FindStringIndex(text); loc != nil && loc[0] < cut {
			cut, resume = loc[0], loc[1]
		}
	}

	return text[:cut], text[resume:]
}

func cleanName(text string) string {
	text = commandPrefix.ReplaceAllString(strings.TrimSpace(text), "")
	text = strings.Trim(text, " ,.!?:;\"'«»()-")

	changed := true
	for changed {
		changed = false
		for _, filler := range fillerWords {
			if text == filler {
				return ""
			}
			if strings.HasPrefix(text, filler+" ") {
				text = strings.TrimSpace(text[len(filler):])
				changed = true
			}
			if strings.HasSuffix(text, " "+filler) {
				text = strings.TrimSpace(text[:len(text)-len(filler)])
				changed = true
			}
		}
		text = strings.Trim(text, " ,.!?:;\"'«»()-")
	}

	return text
}

// searchQuery picks the catalog phrase for a message: the extracted name, or
// the whole message minus commands, trigger verbs and quantity or price
// clauses.
func searchQuery(normalized string, lang string, e Entities) string {
	if e.Name != "" {
		return e.Name
	}

	trigger, ok := nameTrigger[lang]
	if !ok {
		trigger = nameTrigger["ru"]
	}

	text := commandPrefix.ReplaceAllString(normalized, "")
	for _, pattern := range append([]*regexp.Regexp{trigger, qtyClause, maxPriceRU}, maxPriceKK...) {
		text = pattern.ReplaceAllString(text, " ")
	}

	return cleanName(spaceRun.ReplaceAllString(text, " "))
}

// ParseNumber reads a human-typed amount such as "1 234,50" or "5000тг".
// Whitespace is dropped, a comma counts as the decimal separator, non-numeric
// residue is discarded and only the last dot is kept. It returns 0 when
// nothing numeric remains.
func ParseNumber(text string) float64 {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ',' || r == '.':
			b.WriteRune('.')
		}
	}

	digits := b.String()
	if last := strings.LastIndex(digits, "."); last >= 0 {
		digits = strings.ReplaceAll(digits[:last], ".", "") + digits[last:]
	}
	digits = strings.TrimSuffix(digits, ".")
	if digits == "" || digits == "." {
		return 0
	}

	value, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0
	}

	return value
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}
