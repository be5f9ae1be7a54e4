package model

// Level уровень тревоги температуры относительно порогов
type Level string

const (
	LevelNormal       Level = "normal"
	LevelLow          Level = "low"
	LevelHigh         Level = "high"
	LevelCriticalLow  Level = "critical_low"
	LevelCriticalHigh Level = "critical_high"
	LevelFault        Level = "fault"
)

// Severity числовое значение уровня для метрик: 0 - норма, 1 - выход за нормальные пороги,
// 2 - выход за критические, 3 - неисправность датчика
func (m Level) Severity() int {
	switch m {
	case LevelLow, LevelHigh:
		return 1
	case LevelCriticalLow, LevelCriticalHigh:
		return 2
	case LevelFault:
		return 3
	default:
		return 0
	}
}
