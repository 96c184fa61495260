// Package money holds the centavo arithmetic shared by checkout and the dashboard.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// SplitFee returns the platform fee, floor(price * rate), and the creator's
// net amount. All values are in minor units.
func SplitFee(price int64, rate decimal.Decimal) (fee int64, amount int64) {
	if price <= 0 || rate.Sign() <= 0 {
		return 0, price
	}
	fee = decimal.NewFromInt(price).Mul(rate).Floor().IntPart()
	return fee, price - fee
}

// FormatBRL renders centavos the way pt-BR displays currency: "R$ 1.350,00".
func FormatBRL(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	fixed := decimal.NewFromInt(cents).Div(hundred).StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	return fmt.Sprintf("%sR$ %s,%s", sign, groupThousands(whole), frac)
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
