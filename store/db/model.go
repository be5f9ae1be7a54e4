package db

import (
	"time"

	"github.com/kirsrus/termopad/agent/model"
	"github.com/kirsrus/termopad/agent/pkg/max31855"
)

type (
	// GormModelUnscoped модель эквивалент gorm.Model без сохранения удалений
	GormModelUnscoped struct {
		ID        int `gorm:"primaryKey"`
		CreatedAt time.Time
		UpdatedAt time.Time
	}
)

type (
	// Telemetry архив записей телеметрии
	Telemetry struct {
		GormModelUnscoped
		// Секунды эпохи из записи телеметрии
		Time int64
		// Температура термопары в четвертях градуса
		Quarters            int16
		ReferenceSixteenths int16
		TresholdMin         int16
		TresholdMax         int16
		CriticalTresholdMin int16
		CriticalTresholdMax int16
		Fault               bool
		OpenCircuit         bool
		ShortGND            bool
		ShortVCC            bool
		BusError            bool
		Level               string
		PublishFailed       bool
	}
)

// TableName имя таблицы
func (Telemetry) TableName() string {
	return "telemetry_log"
}

// FromEvent заполняет текущую структуру из события телеметрии
func (m *Telemetry) FromEvent(event model.TelemetryEvent) {
	t := event.Telemetry
	*m = Telemetry{
		GormModelUnscoped:   GormModelUnscoped{CreatedAt: event.CreateAt},
		Time:                t.Time,
		Quarters:            int16(t.Temperature),
		ReferenceSixteenths: event.Reading.ReferenceSixteenths,
		TresholdMin:         t.TresholdMin,
		TresholdMax:         t.TresholdMax,
		CriticalTresholdMin: t.CriticalTresholdMin,
		CriticalTresholdMax: t.CriticalTresholdMax,
		Fault:               event.Reading.Fault,
		OpenCircuit:         event.Reading.OpenCircuit,
		ShortGND:            event.Reading.ShortGND,
		ShortVCC:            event.Reading.ShortVCC,
		BusError:            event.Reading.BusError,
		Level:               string(event.Level),
		PublishFailed:       event.PublishFailed,
	}
}

// ToEvent маппинг данных в структуру TelemetryEvent
func (m Telemetry) ToEvent() model.TelemetryEvent {
	reading := model.Reading{
		Quarters:            m.Quarters,
		ReferenceSixteenths: m.ReferenceSixteenths,
		Reference:           m.ReferenceSixteenths >> 4,
		Fault:               m.Fault,
		OpenCircuit:         m.OpenCircuit,
		ShortGND:            m.ShortGND,
		ShortVCC:            m.ShortVCC,
		BusError:            m.BusError,
	}
	reading.Integer, reading.Hundredths = max31855.SplitQuarters(m.Quarters)
	thresholds := model.Thresholds{
		MinNormal:   m.TresholdMin,
		MaxNormal:   m.TresholdMax,
		MinCritical: m.CriticalTresholdMin,
		MaxCritical: m.CriticalTresholdMax,
	}
	return model.TelemetryEvent{
		CreateAt:      m.CreatedAt,
		Telemetry:     model.NewTelemetry(m.Time, reading, thresholds),
		Reading:       reading,
		Level:         model.Level(m.Level),
		PublishFailed: m.PublishFailed,
	}
}

// ToMetric точка истории температуры
func (m Telemetry) ToMetric() model.TemperatureMetric {
	return model.TemperatureMetric{
		Date:        m.CreatedAt,
		Temperature: model.Temperature(m.Quarters),
		Level:       model.Level(m.Level),
		Fault:       m.Fault || m.OpenCircuit || m.ShortGND || m.ShortVCC,
	}
}

type (
	// ThresholdsLog журнал изменения порогов. Поля Set* - значения из обновления
	// (nil - поле отсутствовало), остальные - итоговые пороги
	ThresholdsLog struct {
		GormModelUnscoped
		SetMinNormal   *int16
		SetMaxNormal   *int16
		SetMinCritical *int16
		SetMaxCritical *int16
		MinNormal      int16
		MaxNormal      int16
		MinCritical    int16
		MaxCritical    int16
	}
)

// TableName имя таблицы
func (ThresholdsLog) TableName() string {
	return "thresholds_log"
}
