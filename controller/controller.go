package controller

import (
	"github.com/kirsrus/termopad/agent/model"
)

// SamplerCtl контроллер периодического опроса датчика
//go:generate mockery --dir . --name SamplerCtl --output ./mocks
type SamplerCtl interface {
	// Цикл опроса. Возвращает управление при завершении контекста
	Serve() error
	// Текущее состояние цикла
	State() model.SamplerState
	// Ожидает очередную сформированную запись телеметрии. Возвращает context.Canceled при
	// принудительном завершении работы
	EmmitTelemetry() (*model.TelemetryEvent, error)
}

// ListenerCtl контроллер приёма обновлений порогов
//go:generate mockery --dir . --name ListenerCtl --output ./mocks
type ListenerCtl interface {
	// Цикл приёма. Возвращает управление при завершении контекста
	Serve() error
}
