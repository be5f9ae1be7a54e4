package transport

import (
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	// Величина канала входящих сообщений подписки
	subscriptionCapacity = 10
)

// Подписка на канал. Доставка не блокирует транспорт: при переполнении сообщение
// отбрасывается с предупреждением
type subscription struct {
	topic  string
	log    *logrus.Entry
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

func newSubscription(topic string, log *logrus.Entry) *subscription {
	return &subscription{
		topic: topic,
		log:   log,
		ch:    make(chan []byte, subscriptionCapacity),
	}
}

// Доставка копии payload подписчику
func (m *subscription) deliver(payload []byte) {
	msg := make([]byte, len(payload))
	copy(msg, payload)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.ch <- msg:
	default:
		m.log.Warnf("очередь подписки %s переполнена, сообщение отброшено", m.topic)
	}
}

func (m *subscription) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.ch)
	}
}
