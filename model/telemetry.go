package model

import (
	"encoding/json"
	"time"

	"github.com/juju/errors"
)

// Telemetry запись телеметрии, формируемая каждый период опроса. Порядок полей задаёт
// порядок ключей в JSON
type Telemetry struct {
	Time                int64       `json:"time"`
	Temperature         Temperature `json:"temperature"`
	TresholdMin         int16       `json:"tresholdMin"`
	TresholdMax         int16       `json:"tresholdMax"`
	CriticalTresholdMin int16       `json:"criticalTresholdMin"`
	CriticalTresholdMax int16       `json:"criticalTresholdMax"`
	TempFault           uint8       `json:"tempFault"`
	OpenCircuit         uint8       `json:"openCircuit"`
	ShortGND            uint8       `json:"shortGND"`
	ShortVCC            uint8       `json:"shortVCC"`
}

// NewTelemetry собирает запись из отсчёта, снимка порогов и времени (секунды эпохи)
func NewTelemetry(unix int64, reading Reading, thresholds Thresholds) Telemetry {
	return Telemetry{
		Time:                unix,
		Temperature:         reading.Temperature(),
		TresholdMin:         thresholds.MinNormal,
		TresholdMax:         thresholds.MaxNormal,
		CriticalTresholdMin: thresholds.MinCritical,
		CriticalTresholdMax: thresholds.MaxCritical,
		TempFault:           flag(reading.Fault),
		OpenCircuit:         flag(reading.OpenCircuit),
		ShortGND:            flag(reading.ShortGND),
		ShortVCC:            flag(reading.ShortVCC),
	}
}

// Thresholds пороги, действовавшие на момент формирования записи
func (m Telemetry) Thresholds() Thresholds {
	return Thresholds{
		MinNormal:   m.TresholdMin,
		MaxNormal:   m.TresholdMax,
		MinCritical: m.CriticalTresholdMin,
		MaxCritical: m.CriticalTresholdMax,
	}
}

// Marshal сериализация в JSON
func (m Telemetry) Marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Annotate(err, "ошибка кодирования телеметрии в JSON")
	}
	return data, nil
}

func flag(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

// TelemetryEvent событие о сформированной и отправленной записи телеметрии для
// внутренних потребителей (архив, WEB)
type TelemetryEvent struct {
	CreateAt  time.Time
	Telemetry Telemetry
	Reading   Reading
	Level     Level
	// Запись не была доставлена в транспорт
	PublishFailed bool
}
