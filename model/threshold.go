package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/juju/errors"
	"github.com/shopspring/decimal"
)

// Unset значение порога "не задан"
const Unset int16 = math.MaxInt16

// Thresholds пороги тревоги. Значение Unset означает, что порог не задан
type Thresholds struct {
	MinNormal   int16 `json:"tresholdMin"`
	MaxNormal   int16 `json:"tresholdMax"`
	MinCritical int16 `json:"criticalTresholdMin"`
	MaxCritical int16 `json:"criticalTresholdMax"`
}

// NewThresholds пороги со всеми незаданными значениями
func NewThresholds() Thresholds {
	return Thresholds{
		MinNormal:   Unset,
		MaxNormal:   Unset,
		MinCritical: Unset,
		MaxCritical: Unset,
	}
}

// Merge возвращает копию порогов с перезаписанными полями, присутствующими в update
func (m Thresholds) Merge(update ThresholdsUpdate) Thresholds {
	if update.MinNormal != nil {
		m.MinNormal = *update.MinNormal
	}
	if update.MaxNormal != nil {
		m.MaxNormal = *update.MaxNormal
	}
	if update.MinCritical != nil {
		m.MinCritical = *update.MinCritical
	}
	if update.MaxCritical != nil {
		m.MaxCritical = *update.MaxCritical
	}
	return m
}

// String краткое описание
func (m Thresholds) String() string {
	return fmt.Sprintf("норма [%s..%s], критично [%s..%s]",
		thresholdString(m.MinNormal), thresholdString(m.MaxNormal),
		thresholdString(m.MinCritical), thresholdString(m.MaxCritical))
}

func thresholdString(v int16) string {
	if v == Unset {
		return "-"
	}
	return fmt.Sprintf("%d", v)
}

// Classify уровень тревоги для отсчёта. Незаданные пороги не срабатывают
func (m Thresholds) Classify(reading Reading) Level {
	if reading.HasFault() {
		return LevelFault
	}
	q := int32(reading.Quarters)
	below := func(limit int16) bool { return limit != Unset && q < int32(limit)*4 }
	above := func(limit int16) bool { return limit != Unset && q > int32(limit)*4 }
	switch {
	case below(m.MinCritical):
		return LevelCriticalLow
	case above(m.MaxCritical):
		return LevelCriticalHigh
	case below(m.MinNormal):
		return LevelLow
	case above(m.MaxNormal):
		return LevelHigh
	default:
		return LevelNormal
	}
}

// ThresholdsUpdate частичное обновление порогов. nil - поле отсутствует в сообщении
type ThresholdsUpdate struct {
	MinNormal   *int16 `json:"tresholdMin,omitempty"`
	MaxNormal   *int16 `json:"tresholdMax,omitempty"`
	MinCritical *int16 `json:"criticalTresholdMin,omitempty"`
	MaxCritical *int16 `json:"criticalTresholdMax,omitempty"`
}

// IsEmpty в обновлении нет ни одного поля
func (m ThresholdsUpdate) IsEmpty() bool {
	return m.MinNormal == nil && m.MaxNormal == nil && m.MinCritical == nil && m.MaxCritical == nil
}

// ThresholdsMessage входящее сообщение конфигурации порогов в том виде, как оно приходит
// по каналу. Неизвестные поля игнорируются, null равносилен отсутствию поля
type ThresholdsMessage struct {
	MinNormal   json.RawMessage `json:"tresholdMin"`
	MaxNormal   json.RawMessage `json:"tresholdMax"`
	MinCritical json.RawMessage `json:"criticalTresholdMin"`
	MaxCritical json.RawMessage `json:"criticalTresholdMax"`
}

// Parse разбирает JSON сообщения. Значения должны быть числами JSON (не строками), целыми
// и помещаться в int16
func (m *ThresholdsMessage) Parse(payload []byte) (ThresholdsUpdate, error) {
	*m = ThresholdsMessage{}
	if err := json.Unmarshal(payload, m); err != nil {
		return ThresholdsUpdate{}, errors.Annotate(err, "некорректный JSON")
	}
	var (
		update ThresholdsUpdate
		err    error
	)
	if update.MinNormal, err = toInt16("tresholdMin", m.MinNormal); err != nil {
		return ThresholdsUpdate{}, err
	}
	if update.MaxNormal, err = toInt16("tresholdMax", m.MaxNormal); err != nil {
		return ThresholdsUpdate{}, err
	}
	if update.MinCritical, err = toInt16("criticalTresholdMin", m.MinCritical); err != nil {
		return ThresholdsUpdate{}, err
	}
	if update.MaxCritical, err = toInt16("criticalTresholdMax", m.MaxCritical); err != nil {
		return ThresholdsUpdate{}, err
	}
	return update, nil
}

var (
	minInt16 = decimal.NewFromInt(math.MinInt16)
	maxInt16 = decimal.NewFromInt(math.MaxInt16)
)

func toInt16(name string, raw json.RawMessage) (*int16, error) {
	value := bytes.TrimSpace(raw)
	if len(value) == 0 || string(value) == "null" {
		return nil, nil
	}
	// Строка, даже содержащая число, не принимается
	if value[0] == '"' {
		return nil, errors.Errorf("поле %s: ожидалось число, передана строка %s", name, value)
	}
	d, err := decimal.NewFromString(string(value))
	if err != nil {
		return nil, errors.Annotatef(err, "поле %s: некорректное число %s", name, value)
	}
	if !d.IsInteger() {
		return nil, errors.Errorf("поле %s: значение %s не целое", name, value)
	}
	if d.LessThan(minInt16) || d.GreaterThan(maxInt16) {
		return nil, errors.Errorf("поле %s: значение %s вне диапазона int16", name, value)
	}
	v := int16(d.IntPart())
	return &v, nil
}
