package store

import (
	"time"

	"github.com/kirsrus/termopad/agent/model"
)

// ThresholdStore хранилище действующих порогов тревоги, общее для опроса датчика и
// приёма конфигурации
//go:generate mockery --dir . --name ThresholdStore --output ./mocks
type ThresholdStore interface {
	// Согласованный снимок всех четырёх порогов
	Read() model.Thresholds
	// Атомарно применяет присутствующие в обновлении поля и возвращает итоговые пороги
	Apply(model.ThresholdsUpdate) model.Thresholds
}

// DbStore репозиторий архива телеметрии
//go:generate mockery --dir . --name DbStore --output ./mocks
type DbStore interface {
	// Проверяет, что ошибка err обозначает, что записи не найдены
	IsNotFound(err error) bool

	// Сохранение записи телеметрии в архив
	SetTelemetry(model.TelemetryEvent) error

	// Последняя сохранённая запись телеметрии. Отсутствие записей проверяется через IsNotFound
	LastTelemetry() (*model.TelemetryEvent, error)

	// Возвращает значения температур за days дней (со смещением offsetDays) по каждому отсчёту.
	// Если compact=true - данные сжимаются до дней и температура показывается только минимальная
	// и максимальная для каждого дня
	TelemetryLog(days uint, offsetDays uint, compact bool) ([]model.TemperatureMetric, error)

	// Сохранение применённого обновления порогов и итоговых порогов
	SetThresholdsLog(createAt time.Time, update model.ThresholdsUpdate, result model.Thresholds) error

	// Журнал изменений порогов за days дней
	ThresholdsLog(days uint) ([]ThresholdsLog, error)

	// Очищает записи в БД старше days дней
	Clean(days int) error

	// Закрытие подключения к БД
	Close() error
}

// ThresholdsLog запись журнала изменения порогов
type ThresholdsLog struct {
	CreatedAt time.Time              `json:"createdAt"`
	Update    model.ThresholdsUpdate `json:"update"`
	Result    model.Thresholds       `json:"result"`
}
