package reporting

import "github.com/shopspring/decimal"

// DisplayAmount renders a minor-unit amount with the commodity's decimal
// places, e.g. 12345 with 2 places becomes "123.45".
func DisplayAmount(amount int64, decimalPlace int32) string {
	return decimal.New(amount, -decimalPlace).StringFixed(decimalPlace)
}
