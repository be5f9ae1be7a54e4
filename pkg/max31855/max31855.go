// Package max31855 декодирование 32-битного слова преобразователя термопары MAX31855.
//
// Слово читается с шины SPI двумя 16-битными передачами. Старшее слово (high):
//
//	D15..D2  температура термопары, 14 бит в дополнительном коде, шаг 0.25°C
//	D1       зарезервирован
//	D0       общий флаг неисправности (Fault)
//
// Младшее слово (low):
//
//	D15..D4  температура опорного спая, 12 бит в дополнительном коде, шаг 0.0625°C
//	D3       зарезервирован
//	D2       замыкание на VCC
//	D1       замыкание на GND
//	D0       обрыв термопары
//
// Все функции пакета чистые и определены на всей области 16-битных значений.
//
// Datasheet: https://datasheets.maximintegrated.com/en/ds/MAX31855.pdf
package max31855

import (
	"github.com/kirsrus/termopad/agent/model"
)

const (
	bitFault       = 0x0001
	bitOpenCircuit = 0x0001
	bitShortGND    = 0x0002
	bitShortVCC    = 0x0004

	mask14   = 0x3FFF
	signBit  = 0x2000
	signFill = 0xC000

	// Шаг дробной части температуры термопары в сотых долях градуса
	quarterHundredths = 25
)

// Faults флаги неисправности, извлечённые из фиксированных позиций битов
type Faults struct {
	Fault       bool
	OpenCircuit bool
	ShortGND    bool
	ShortVCC    bool
}

// Any хотя бы один из флагов установлен
func (m Faults) Any() bool {
	return m.Fault || m.OpenCircuit || m.ShortGND || m.ShortVCC
}

// DecodeFaults извлекает флаги неисправности. Fault берётся из D0 старшего слова, остальные
// из трёх младших битов младшего слова. Согласованность флагов между собой не проверяется.
func DecodeFaults(high, low uint16) Faults {
	return Faults{
		Fault:       high&bitFault != 0,
		OpenCircuit: low&bitOpenCircuit != 0,
		ShortGND:    low&bitShortGND != 0,
		ShortVCC:    low&bitShortVCC != 0,
	}
}

// SignExtend14 отбрасывает два младших служебных бита старшего слова и расширяет знак
// 14-битного значения (бит 13) на биты 14-15. Результат в четвертях градуса.
func SignExtend14(high uint16) int16 {
	tc14 := (high >> 2) & mask14
	if tc14&signBit != 0 {
		tc14 |= signFill
	}
	return int16(tc14)
}

// Unextend14 обратное к SignExtend14 преобразование: возвращает биты D15..D2 старшего слова
func Unextend14(quarters int16) uint16 {
	return (uint16(quarters) & mask14) << 2
}

// SplitQuarters раскладывает значение в четвертях градуса на целую часть и сотые доли так,
// что целая часть со знаком плюс сотые с тем же знаком дают исходную температуру.
// Для -10.25°C результат (-10, 25).
func SplitQuarters(quarters int16) (integer int16, hundredths int16) {
	integer = quarters / 4
	rest := quarters % 4
	if rest < 0 {
		rest = -rest
	}
	return integer, rest * quarterHundredths
}

// DecodeTemperature температура термопары из старшего слова: целая часть и сотые доли
func DecodeTemperature(high uint16) (integer int16, hundredths int16) {
	return SplitQuarters(SignExtend14(high))
}

// DecodeReference температура опорного спая в целых градусах (дробные биты отбрасываются)
func DecodeReference(low uint16) int16 {
	return int16(low) >> 8
}

// DecodeReferenceSixteenths температура опорного спая с полной точностью, в 1/16 градуса
func DecodeReferenceSixteenths(low uint16) int16 {
	return int16(low) >> 4
}

// Decode полное декодирование сырого отсчёта
func Decode(raw model.RawSample) model.Reading {
	faults := DecodeFaults(raw.High, raw.Low)
	quarters := SignExtend14(raw.High)
	integer, hundredths := SplitQuarters(quarters)
	return model.Reading{
		Raw:                 raw,
		Quarters:            quarters,
		Integer:             integer,
		Hundredths:          hundredths,
		Reference:           DecodeReference(raw.Low),
		ReferenceSixteenths: DecodeReferenceSixteenths(raw.Low),
		Fault:               faults.Fault,
		OpenCircuit:         faults.OpenCircuit,
		ShortGND:            faults.ShortGND,
		ShortVCC:            faults.ShortVCC,
	}
}

// Encode собирает сырой отсчёт из температуры термопары (в четвертях градуса), флагов и
// температуры опорного спая (в 1/16 градуса). Используется имитатором шины.
func Encode(quarters int16, faults Faults, referenceSixteenths int16) model.RawSample {
	high := Unextend14(quarters)
	if faults.Fault {
		high |= bitFault
	}
	low := uint16(referenceSixteenths) << 4
	if faults.OpenCircuit {
		low |= bitOpenCircuit
	}
	if faults.ShortGND {
		low |= bitShortGND
	}
	if faults.ShortVCC {
		low |= bitShortVCC
	}
	return model.RawSample{High: high, Low: low}
}
