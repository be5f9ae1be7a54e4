package model

import (
	"github.com/shopspring/decimal"
)

// Temperature температура в четвертях градуса Цельсия. В JSON выводится числом с двумя
// знаками после запятой: 23.75, -10.25, -0.25
type Temperature int16

// Decimal значение в градусах
func (m Temperature) Decimal() decimal.Decimal {
	return decimal.New(int64(m)*25, -2)
}

// String строковое представление в градусах
func (m Temperature) String() string {
	return m.Decimal().StringFixed(2)
}

// Float значение в градусах для метрик
func (m Temperature) Float() float64 {
	return float64(m) / 4
}

// MarshalJSON число без кавычек
func (m Temperature) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}
