package transport

import (
	"context"
	"io"
	"io/ioutil"
	"sync"
	"time"

	"github.com/kirsrus/termopad/agent/service"

	"github.com/juju/errors"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const (
	kafkaBatchTimeout = 50 * time.Millisecond
	kafkaMaxWait      = time.Second
	kafkaMaxBytes     = 1 << 20
)

// Kafka транспорт через брокер Kafka. Инициируется через NewKafka.
// Публикация асинхронная, ошибки доставки только логируются
type Kafka struct {
	log              *logrus.Entry
	brokers          []string
	groupID          string
	reconnectTimeout time.Duration
	writer           *kafka.Writer

	mu      sync.Mutex
	readers map[string]*kafka.Reader
	wg      sync.WaitGroup
}

// ConfigKafka конфигурация Kafka
type ConfigKafka struct {
	Log              *logrus.Logger
	Brokers          []string `validate:"required,min=1,dive,hostname_port"`
	GroupID          string   `conform:"trim" validate:"required"`
	ReconnectTimeout time.Duration
}

// NewKafka конструктор Kafka
func NewKafka(config *ConfigKafka) (service.TransportSvc, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	} else if err := validatorGet().ValidateWithConform(config); err != nil {
		return nil, errors.Annotate(err, "ошибка в конфигурации")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}

	res := &Kafka{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "kafka",
			"scope":  "transport",
			"group":  config.GroupID,
		}),
		brokers:          config.Brokers,
		groupID:          config.GroupID,
		reconnectTimeout: reconnectTimeout,
		readers:          make(map[string]*kafka.Reader),
	}
	if config.ReconnectTimeout != 0 {
		res.reconnectTimeout = config.ReconnectTimeout
	}
	res.writer = &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           kafkaBatchTimeout,
		Async:                  true,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				res.log.Warnf("ошибка публикации %d сообщений: %v", len(messages), err)
			}
		},
	}

	return res, nil
}

// Publish ставит payload в очередь отправки
func (m *Kafka) Publish(topic string, payload []byte) error {
	err := m.writer.WriteMessages(context.Background(), kafka.Message{
		Topic: topic,
		Value: payload,
	})
	return errors.Annotatef(err, "ошибка публикации в %s", topic)
}

// Subscribe чтение канала topic в составе группы потребителей. Канал результата
// закрывается при завершении ctx
func (m *Kafka) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	m.mu.Lock()
	if _, ok := m.readers[topic]; ok {
		m.mu.Unlock()
		return nil, errors.AlreadyExistsf("подписка на %s", topic)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  m.brokers,
		GroupID:  m.groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: kafkaMaxBytes,
		MaxWait:  kafkaMaxWait,
	})
	m.readers[topic] = reader
	m.mu.Unlock()

	sub := newSubscription(topic, m.log)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer sub.close()
		defer func() {
			m.mu.Lock()
			delete(m.readers, topic)
			m.mu.Unlock()
			_ = reader.Close()
		}()

		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				// io.EOF возвращается закрытым читателем
				if ctx.Err() != nil || err == io.EOF {
					return
				}
				m.log.Warnf("ошибка чтения из %s: %v", topic, err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(m.reconnectTimeout):
				}
				continue
			}
			sub.deliver(msg.Value)
		}
	}()

	return sub.ch, nil
}

// Close сбрасывает очередь публикации и закрывает читателей
func (m *Kafka) Close() error {
	m.mu.Lock()
	for _, reader := range m.readers {
		_ = reader.Close()
	}
	m.mu.Unlock()
	m.wg.Wait()
	return errors.Annotate(m.writer.Close(), "ошибка закрытия публикатора")
}
