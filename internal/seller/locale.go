package seller

import (
	"fmt"
	"strings"
)

// Locale is a marketplace region. It affects which storefront is queried and
// how prices are rendered, never how they are compared.
type Locale string

const (
	LocaleUS Locale = "us"
	LocaleCA Locale = "ca"
	LocaleUK Locale = "uk"
	LocaleAU Locale = "au"
	LocaleFR Locale = "fr"
	LocaleDE Locale = "de"
	LocaleJP Locale = "jp"
	LocaleIT Locale = "it"
	LocaleIN Locale = "in"
	LocaleES Locale = "es"
	LocaleBR Locale = "br"
)

type localeInfo struct {
	currency    string
	symbol      string
	audibleHost string
}

var locales = map[Locale]localeInfo{
	LocaleUS: {currency: "USD", symbol: "$", audibleHost: "api.audible.com"},
	LocaleCA: {currency: "CAD", symbol: "$", audibleHost: "api.audible.ca"},
	LocaleUK: {currency: "GBP", symbol: "£", audibleHost: "api.audible.co.uk"},
	LocaleAU: {currency: "AUD", symbol: "$", audibleHost: "api.audible.com.au"},
	LocaleFR: {currency: "EUR", symbol: "€", audibleHost: "api.audible.fr"},
	LocaleDE: {currency: "EUR", symbol: "€", audibleHost: "api.audible.de"},
	LocaleJP: {currency: "JPY", symbol: "¥", audibleHost: "api.audible.co.jp"},
	LocaleIT: {currency: "EUR", symbol: "€", audibleHost: "api.audible.it"},
	LocaleIN: {currency: "INR", symbol: "₹", audibleHost: "api.audible.in"},
	LocaleES: {currency: "EUR", symbol: "€", audibleHost: "api.audible.es"},
	LocaleBR: {currency: "BRL", symbol: "R$", audibleHost: "api.audible.com.br"},
}

// Locales returns every supported locale in stable order.
func Locales() []Locale {
	return []Locale{
		LocaleUS, LocaleCA, LocaleUK, LocaleAU, LocaleFR, LocaleDE,
		LocaleJP, LocaleIT, LocaleIN, LocaleES, LocaleBR,
	}
}

// ParseLocale resolves a locale code such as "us" or "UK".
func ParseLocale(s string) (Locale, error) {
	l := Locale(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown locale %q", s)
	}
	return l, nil
}

// Valid reports whether l is a supported locale.
func (l Locale) Valid() bool {
	_, ok := locales[l]
	return ok
}

// Currency returns the ISO 4217 code prices are quoted in. Unknown locales
// fall back to USD.
func (l Locale) Currency() string {
	if info, ok := locales[l]; ok {
		return info.currency
	}
	return locales[LocaleUS].currency
}

// Symbol returns the currency symbol used when rendering prices.
func (l Locale) Symbol() string {
	if info, ok := locales[l]; ok {
		return info.symbol
	}
	return locales[LocaleUS].symbol
}

// AudibleHost returns the Audible API host for this marketplace.
func (l Locale) AudibleHost() string {
	if info, ok := locales[l]; ok {
		return info.audibleHost
	}
	return locales[LocaleUS].audibleHost
}

// SymbolFor returns the symbol for an ISO currency code, or the code itself.
func SymbolFor(currency string) string {
	for _, l := range Locales() {
		info := locales[l]
		if info.currency == currency {
			return info.symbol
		}
	}
	return currency + " "
}
