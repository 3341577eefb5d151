package funnel

import (
	"fmt"
	"strings"

	"salesbot/pkg/bus"
)

const emptySlot = "—"

type texts struct {
	prompts [3]string
	layout  string
}

var catalog = map[string]texts{
	bus.LangRU: {
		prompts: [3]string{
			"Подскажите, что вы ищете? Опишите товар или задачу.",
			"Уточните характеристики: размер, марку, объём или количество.",
			"Какой бюджет вы рассматриваете?",
		},
		layout: "Спасибо! Ваш запрос:\n• Что: %s\n• Характеристики: %s\n• Бюджет: %s\nМенеджер свяжется с вами в ближайшее время.",
	},
	bus.LangKK: {
		prompts: [3]string{
			"Сізге не керек? Тауарды немесе міндетті сипаттаңыз.",
			"Сипаттамаларын нақтылаңыз: өлшемі, маркасы, көлемі немесе саны.",
			"Қандай бюджетті қарастырып отырсыз?",
		},
		layout: "Рахмет! Сіздің сұранысыңыз:\n• Не: %s\n• Сипаттамасы: %s\n• Бюджет: %s\nМенеджер жақын арада хабарласады.",
	},
}

func textsFor(lang string) texts {
	return catalog[bus.ParseLang(lang)]
}

func (t texts) summary(slots map[string]string) string {
	return fmt.Sprintf(t.layout, slotValue(slots, SlotWhat), slotValue(slots, SlotSpec), slotValue(slots, SlotBudget))
}

// Prompt returns the question asked at step (1..3) in lang, or "" for any
// other step.
func Prompt(lang string, step int) string {
	if step < 1 || step > len(steps) {
		return ""
	}

	return textsFor(lang).prompts[step-1]
}

// Summary renders the closing message for the given slot values.
func Summary(lang string, slots map[string]string) string {
	return textsFor(lang).summary(slots)
}

func slotValue(slots map[string]string, name string) string {
	value := strings.TrimSpace(slots[name])
	if value == "" {
		return emptySlot
	}

	return value
}
