package model

import "time"

// TemperatureMetric точка истории температуры. Для сжатой по дням истории заполнены
// TemperatureMin и TemperatureMax, а Temperature равна нулю
type TemperatureMetric struct {
	Date           time.Time   `json:"date"`
	Temperature    Temperature `json:"temperature"`
	TemperatureMax Temperature `json:"temperatureMax"`
	TemperatureMin Temperature `json:"temperatureMin"`
	Level          Level       `json:"level,omitempty"`
	Fault          bool        `json:"fault"`
}
