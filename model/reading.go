package model

import (
	"github.com/shopspring/decimal"
)

// RawSample сырой отсчёт с шины: два последовательно прочитанных 16-битных слова.
// Живёт в пределах одного периода опроса.
type RawSample struct {
	High uint16
	Low  uint16
}

// Reading декодированный отсчёт термопары
type Reading struct {
	Raw RawSample

	// Температура термопары в четвертях градуса (14 бит с расширенным знаком)
	Quarters int16
	// Целая часть температуры (округление к нулю)
	Integer int16
	// Дробная часть в сотых долях градуса: 0, 25, 50 или 75
	Hundredths int16

	// Температура опорного спая в целых градусах
	Reference int16
	// Температура опорного спая в 1/16 градуса
	ReferenceSixteenths int16

	Fault       bool
	OpenCircuit bool
	ShortGND    bool
	ShortVCC    bool

	// Отсчёт получен с ошибкой шины
	BusError bool
}

// Temperature температура термопары для передачи в телеметрии
func (m Reading) Temperature() Temperature {
	return Temperature(m.Quarters)
}

// HasFault установлен хотя бы один флаг неисправности
func (m Reading) HasFault() bool {
	return m.Fault || m.OpenCircuit || m.ShortGND || m.ShortVCC
}

// MarkBusError помечает отсчёт как полностью неисправный (ошибка обмена по шине)
func (m *Reading) MarkBusError() {
	m.BusError = true
	m.Fault = true
	m.OpenCircuit = true
	m.ShortGND = true
	m.ShortVCC = true
}

// ReferenceCelsius температура опорного спая. При precise=true с шагом 0.0625°C
func (m Reading) ReferenceCelsius(precise bool) decimal.Decimal {
	if precise {
		return decimal.New(int64(m.ReferenceSixteenths)*625, -4)
	}
	return decimal.New(int64(m.Reference), 0)
}
