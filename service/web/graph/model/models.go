package model

type Status struct {
	State      string      `json:"state"`
	Stale      bool        `json:"stale"`
	Thresholds *Thresholds `json:"thresholds"`
	Last       *Telemetry  `json:"last"`
}

type Telemetry struct {
	Update        string      `json:"update"`
	Time          int         `json:"time"`
	Temperature   float64     `json:"temperature"`
	Reference     float64     `json:"reference"`
	Thresholds    *Thresholds `json:"thresholds"`
	Level         string      `json:"level"`
	TempFault     bool        `json:"tempFault"`
	OpenCircuit   bool        `json:"openCircuit"`
	ShortGnd      bool        `json:"shortGND"`
	ShortVcc      bool        `json:"shortVCC"`
	BusError      bool        `json:"busError"`
	PublishFailed bool        `json:"publishFailed"`
}

type TemperatureMetric struct {
	Date           string  `json:"date"`
	Temperature    float64 `json:"temperature"`
	TemperatureMax float64 `json:"temperatureMax"`
	TemperatureMin float64 `json:"temperatureMin"`
	Level          string  `json:"level"`
	Fault          bool    `json:"fault"`
}

type Thresholds struct {
	TresholdMin         int `json:"tresholdMin"`
	TresholdMax         int `json:"tresholdMax"`
	CriticalTresholdMin int `json:"criticalTresholdMin"`
	CriticalTresholdMax int `json:"criticalTresholdMax"`
}

type ThresholdsChange struct {
	CreatedAt string            `json:"createdAt"`
	Update    *ThresholdsUpdate `json:"update"`
	Result    *Thresholds       `json:"result"`
}

type ThresholdsUpdate struct {
	TresholdMin         *int `json:"tresholdMin"`
	TresholdMax         *int `json:"tresholdMax"`
	CriticalTresholdMin *int `json:"criticalTresholdMin"`
	CriticalTresholdMax *int `json:"criticalTresholdMax"`
}
