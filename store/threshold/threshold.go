package threshold

import (
	"sync"

	"github.com/kirsrus/termopad/agent/model"
)

// Threshold хранилище порогов тревоги, разделяемое опросчиком датчика (читатель) и
// слушателем конфигурации (писатель). Инициализируется через NewThreshold со всеми
// порогами в значении model.Unset.
type Threshold struct {
	mu         sync.RWMutex
	thresholds model.Thresholds
}

// NewThreshold конструктор Threshold
func NewThreshold() *Threshold {
	return &Threshold{thresholds: model.NewThresholds()}
}

// Read возвращает согласованный снимок всех четырёх порогов
func (m *Threshold) Read() model.Thresholds {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.thresholds
}

// Apply перезаписывает только присутствующие в update поля и возвращает получившийся снимок.
// Для читателя вызов неделим.
func (m *Threshold) Apply(update model.ThresholdsUpdate) model.Thresholds {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds = m.thresholds.Merge(update)
	return m.thresholds
}
