package dialog

import "salesbot/pkg/bus"

// Texts is the reply vocabulary of one language. Fields holding a format
// verb are rendered with fmt.Sprintf.
type Texts struct {
	Help    string
	Apology string
	Handoff string

	SearchNeedsQuery string
	SearchHeader     string
	SearchFooter     string
	NotFound         string // query
	PriceCeiling     string // max price, currency

	AddNeedsProduct string
	AddNotFound     string // query
	Added           string // name, qty, lines in cart

	CartEmpty    string
	CartHeader   string
	SubtotalLine string // amount, currency
	VATLine      string // rate, amount, currency
	TotalLine    string // amount, currency

	RemoveNeedsItem string
	RemoveNotFound  string
	Removed         string // name
	Cleared         string

	CheckoutEmpty string
	CheckoutDone  string // lead number, totals block

	QuoteNeedsCart      string
	InvoiceNeedsCart    string
	QuoteDone           string // lead number
	InvoiceDone         string // lead number
	DocumentUnavailable string // lead number

	DeliveryDefault string
	PromoDefault    string
	AddressDefault  string
	PhoneLine       string // phone

	CallbackDone    string
	CallbackNoPhone string
}

var texts = map[string]Texts{
	bus.LangRU: {
		Help: "Я помогу подобрать товар и оформить заказ.\n" +
			"Например:\n" +
			"• «найди цемент М500»\n" +
			"• «добавь CM-400 10 шт»\n" +
			"• «корзина», «оформить заказ», «счёт», «КП»\n" +
			"• «доставка», «акции», «адрес», «перезвоните мне»\n" +
			"Напишите «стоп», чтобы позвать менеджера.",
		Apology: "Извините, сейчас не получается выполнить запрос. Попробуйте чуть позже или напишите «стоп», и с вами свяжется менеджер.",
		Handoff: "Хорошо, передаю диалог менеджеру. Он свяжется с вами в ближайшее время.",

		SearchNeedsQuery: "Что именно вы ищете? Напишите название товара или артикул.",
		SearchHeader:     "Вот что нашлось:",
		SearchFooter:     "Чтобы добавить товар в корзину, напишите «добавь <артикул> <количество> шт».",
		NotFound:         "По запросу «%s» ничего не нашлось. Уточните название или артикул.",
		PriceCeiling:     "Показываю товары до %s %s.",

		AddNeedsProduct: "Какой товар добавить? Укажите название или артикул.",
		AddNotFound:     "Не нашёл товар «%s». Уточните название или артикул.",
		Added:           "Добавил в корзину: %s × %d. Позиций в корзине: %d.",

		CartEmpty:    "Корзина пуста.",
		CartHeader:   "Ваша корзина:",
		SubtotalLine: "Сумма без НДС: %s %s",
		VATLine:      "НДС %s%%: %s %s",
		TotalLine:    "Итого: %s %s",

		RemoveNeedsItem: "Что удалить из корзины? Укажите артикул или название.",
		RemoveNotFound:  "Такого товара нет в корзине.",
		Removed:         "Удалил из корзины: %s.",
		Cleared:         "Корзина очищена.",

		CheckoutEmpty: "Корзина пуста. Добавьте товары, чтобы оформить заказ.",
		CheckoutDone:  "Заказ оформлен! Номер заявки: %s.\n%s\nМенеджер свяжется с вами для подтверждения.",

		QuoteNeedsCart:      "Добавьте товары в корзину, и я подготовлю коммерческое предложение.",
		InvoiceNeedsCart:    "Добавьте товары в корзину, и я выставлю счёт.",
		QuoteDone:           "Коммерческое предложение готово, заявка %s.",
		InvoiceDone:         "Счёт на оплату готов, заявка %s.",
		DocumentUnavailable: "Заявка %s принята. Менеджер подготовит документ и отправит его вам.",

		DeliveryDefault: "Доставляем по городу и области. Стоимость и сроки менеджер уточнит после оформления заказа.",
		PromoDefault:    "Сейчас действующих акций нет. Следите за новостями!",
		AddressDefault:  "Адрес и режим работы подскажет менеджер. Напишите «перезвоните мне», и мы свяжемся с вами.",
		PhoneLine:       "Телефон: %s",

		CallbackDone:    "Спасибо! Менеджер перезвонит вам в ближайшее время.",
		CallbackNoPhone: "Спасибо! Оставьте, пожалуйста, номер телефона, и менеджер вам перезвонит.",
	},
	bus.LangKK: {
		Help: "Мен тауар таңдауға және тапсырыс беруге көмектесемін.\n" +
			"Мысалы:\n" +
			"• «цемент М500 іздеймін»\n" +
			"• «CM-400 10 дана себетке қос»\n" +
			"• «себет», «тапсырыс беремін», «шот», «коммерциялық ұсыныс»\n" +
			"• «жеткізу», «жеңілдік», «мекенжай», «қоңырау шалыңыз»\n" +
			"Менеджерді шақыру үшін «тоқта» деп жазыңыз.",
		Apology: "Кешіріңіз, қазір сұранысты орындау мүмкін болмады. Сәл кейінірек қайталаңыз немесе «тоқта» деп жазыңыз, менеджер хабарласады.",
		Handoff: "Жақсы, диалогты менеджерге беремін. Ол жақын арада хабарласады.",

		SearchNeedsQuery: "Нақты не іздеп жүрсіз? Тауардың атауын немесе артикулын жазыңыз.",
		SearchHeader:     "Міне, табылғандар:",
		SearchFooter:     "Себетке қосу үшін «<артикул> <саны> дана себетке қос» деп жазыңыз.",
		NotFound:         "«%s» бойынша ештеңе табылмады. Атауын немесе артикулын нақтылаңыз.",
		PriceCeiling:     "%s %s дейінгі тауарларды көрсетемін.",

		AddNeedsProduct: "Қай тауарды қосайын? Атауын немесе артикулын жазыңыз.",
		AddNotFound:     "«%s» тауары табылмады. Атауын немесе артикулын нақтылаңыз.",
		Added:           "Себетке қосылды: %s × %d. Себеттегі позициялар: %d.",

		CartEmpty:    "Себет бос.",
		CartHeader:   "Сіздің себетіңіз:",
		SubtotalLine: "ҚҚС-сыз сома: %s %s",
		VATLine:      "ҚҚС %s%%: %s %s",
		TotalLine:    "Барлығы: %s %s",

		RemoveNeedsItem: "Себеттен нені өшірейін? Артикулын немесе атауын жазыңыз.",
		RemoveNotFound:  "Себетте мұндай тауар жоқ.",
		Removed:         "Себеттен өшірілді: %s.",
		Cleared:         "Себет тазартылды.",

		CheckoutEmpty: "Себет бос. Тапсырыс беру үшін тауар қосыңыз.",
		CheckoutDone:  "Тапсырыс қабылданды! Өтінім нөмірі: %s.\n%s\nМенеджер растау үшін хабарласады.",

		QuoteNeedsCart:      "Себетке тауар қосыңыз, мен коммерциялық ұсыныс дайындаймын.",
		InvoiceNeedsCart:    "Себетке тауар қосыңыз, мен төлем шотын дайындаймын.",
		QuoteDone:           "Коммерциялық ұсыныс дайын, өтінім %s.",
		InvoiceDone:         "Төлем шоты дайын, өтінім %s.",
		DocumentUnavailable: "%s өтінімі қабылданды. Менеджер құжатты дайындап, сізге жібереді.",

		DeliveryDefault: "Қала және облыс бойынша жеткіземіз. Құны мен мерзімін менеджер тапсырыстан кейін нақтылайды.",
		PromoDefault:    "Қазір белсенді акциялар жоқ. Жаңалықтарды қадағалаңыз!",
		AddressDefault:  "Мекенжай мен жұмыс уақытын менеджер айтады. «Қоңырау шалыңыз» деп жазыңыз, біз хабарласамыз.",
		PhoneLine:       "Телефон: %s",

		CallbackDone:    "Рахмет! Менеджер жақын арада қоңырау шалады.",
		CallbackNoPhone: "Рахмет! Телефон нөміріңізді қалдырыңыз, менеджер қоңырау шалады.",
	},
}

// TextsFor returns the vocabulary for lang. Unknown languages get Russian.
func TextsFor(lang string) Texts {
	return texts[bus.ParseLang(lang)]
}
