package usecase

import "github.com/shopspring/decimal"

// Money はレスポンス用の金額。JSONでは常に小数2桁の文字列（"90.00"）。
type Money struct {
	decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money {
	return Money{Decimal: d.Round(2)}
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.StringFixed(2) + `"`), nil
}
