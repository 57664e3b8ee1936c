package provider

import (
	"strings"

	"github.com/shopspring/decimal"
)

// TroyOunceGrams is the number of grams in one troy ounce.
const TroyOunceGrams = "31.1035"

var troyOunce = decimal.RequireFromString(TroyOunceGrams)

// Metal symbols as quoted by upstream APIs, mapped to stored names.
var MetalNames = map[string]string{
	"XAU": "gold",
	"XAG": "silver",
	"XPT": "platinum",
	"XPD": "palladium",
}

// MetalSymbols lists the ISO 4217 metal codes in a stable order.
var MetalSymbols = []string{"XAU", "XAG", "XPT", "XPD"}

// PerGram converts a price per troy ounce to a price per gram, rounded to 4 places.
func PerGram(pricePerOunce float64) float64 {
	v, _ := decimal.NewFromFloat(pricePerOunce).Div(troyOunce).Round(4).Float64()
	return v
}

// Invert returns 1/rate rounded to 8 places, or 0 for a zero rate.
func Invert(rate float64) float64 {
	if rate == 0 {
		return 0
	}
	v, _ := decimal.NewFromInt(1).Div(decimal.NewFromFloat(rate)).Round(8).Float64()
	return v
}

// NormalizeCode upper-cases and trims a currency or symbol code.
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
