package model

// SamplerState состояние цикла опроса датчика
type SamplerState int32

const (
	// StateIdle ожидание следующего периода
	StateIdle SamplerState = iota
	// StateSelecting датчик выбран, идёт обмен по шине
	StateSelecting
)

func (m SamplerState) String() string {
	if m == StateSelecting {
		return "selecting"
	}
	return "idle"
}

// MarshalText представление состояния в JSON
func (m SamplerState) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
