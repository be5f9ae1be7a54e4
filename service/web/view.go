package web

import (
	"github.com/kirsrus/termopad/agent/model"
)

// Представление записи телеметрии для WEB
type telemetryView struct {
	Update        string            `json:"update"`
	Telemetry     model.Telemetry   `json:"telemetry"`
	Reference     model.Temperature `json:"reference"`
	Level         model.Level       `json:"level"`
	BusError      bool              `json:"busError"`
	PublishFailed bool              `json:"publishFailed"`
}

func newTelemetryView(event model.TelemetryEvent) *telemetryView {
	return &telemetryView{
		Update:        event.CreateAt.Format("2006.01.02 15:04:05"),
		Telemetry:     event.Telemetry,
		Reference:     model.Temperature(event.Reading.ReferenceSixteenths / 4),
		Level:         event.Level,
		BusError:      event.Reading.BusError,
		PublishFailed: event.PublishFailed,
	}
}

// Ответ /api/status
type statusView struct {
	State      model.SamplerState `json:"state"`
	Stale      bool               `json:"stale"`
	Thresholds model.Thresholds   `json:"thresholds"`
	Last       *telemetryView     `json:"last"`
}
