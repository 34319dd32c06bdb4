package render

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatMoney renders amount in the display format of currency, rounded to its minor unit.
// Currencies unknown to go-money fall back to "<amount> <CODE>".
func FormatMoney(amount decimal.Decimal, currency string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	cur := money.GetCurrency(code)
	if cur == nil {
		return amount.StringFixed(2) + " " + code
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, code).Display()
}

func formatNullMoney(amount decimal.NullDecimal, currency string) string {
	if !amount.Valid {
		return "n/a"
	}
	return FormatMoney(amount.Decimal, currency)
}

// signed prefixes positive amounts with "+"
func signed(amount decimal.NullDecimal, currency string) string {
	if !amount.Valid {
		return "n/a"
	}
	if amount.Decimal.IsPositive() {
		return "+" + FormatMoney(amount.Decimal, currency)
	}
	return FormatMoney(amount.Decimal, currency)
}
