package service

import (
	"context"

	"github.com/kirsrus/termopad/agent/model"
)

// BusSvc синхронная последовательная шина с управляемой линией выбора кристалла.
// Шиной владеет только опросчик датчика.
//go:generate mockery --dir . --name BusSvc --output ./mocks
type BusSvc interface {
	// Передаёт 16-битное слово и возвращает принятое слово
	Transfer(word uint16) (uint16, error)
	// Выбор кристалла: true - датчик выбран (линия в низком уровне)
	Select(active bool) error
	// Освобождает шину, оставляя датчик невыбранным
	Close() error
}

// TransportSvc транспорт публикации/подписки (брокер сообщений).
//go:generate mockery --dir . --name TransportSvc --output ./mocks
type TransportSvc interface {
	// Публикует payload в канал topic без ожидания подтверждения доставки
	Publish(topic string, payload []byte) error
	// Подписывается на канал topic. Канал результата закрывается при завершении ctx
	// или закрытии транспорта
	Subscribe(ctx context.Context, topic string) (<-chan []byte, error)
	// Закрывает подключение к брокеру
	Close() error
}

// WebSvc сервис WEB-интерфейса состояния агента
//go:generate mockery --dir . --name WebSvc --output ./mocks
type WebSvc interface {
	// Запускает HTTP-сервер и блокируется до завершения ctx
	Serve(ctx context.Context) error
	// Отсылка события о новой записи телеметрии
	TelemetryChanged(model.TelemetryEvent)
}
