package transport

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"strings"
	"sync"
	"time"

	"github.com/kirsrus/termopad/agent/model"
	"github.com/kirsrus/termopad/agent/service"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	writeChanCapacity = 10
)

// Тип текущего состояния подключения к шлюзу
type connectType int

const (
	connectUnknown connectType = iota
	connectSuccess
	connectFailed
)

// Websocket транспорт через WebSocket шлюз. Инициируется через NewWebsocket.
// Постоянно держит соединение, пока не завершён контекст
type Websocket struct {
	ctx              context.Context
	cancel           context.CancelFunc
	log              *logrus.Entry
	url              string
	session          string
	reconnectTimeout time.Duration
	writeChan        chan []byte

	mu            sync.Mutex
	connectedFlag connectType
	subs          map[string]*subscription
	done          chan struct{}
}

// ConfigWebsocket конфигурация Websocket
type ConfigWebsocket struct {
	Log              *logrus.Logger
	URL              string `conform:"trim" validate:"required,websocket"`
	ReconnectTimeout time.Duration
}

// NewWebsocket конструктор Websocket
func NewWebsocket(ctx context.Context, config *ConfigWebsocket) (service.TransportSvc, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	} else if err := validatorGet().ValidateWithConform(config); err != nil {
		return nil, errors.Annotate(err, "ошибка в конфигурации")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}

	session := uuid.New().String()
	ctx, cancel := context.WithCancel(ctx)
	res := &Websocket{
		ctx:    ctx,
		cancel: cancel,
		log: config.Log.WithFields(map[string]interface{}{
			"module":  "websocket",
			"scope":   "transport",
			"address": config.URL,
			"session": session,
		}),
		url:              config.URL,
		session:          session,
		reconnectTimeout: reconnectTimeout,
		writeChan:        make(chan []byte, writeChanCapacity),
		connectedFlag:    connectUnknown,
		subs:             make(map[string]*subscription),
		done:             make(chan struct{}),
	}
	if config.ReconnectTimeout != 0 {
		res.reconnectTimeout = config.ReconnectTimeout
	}

	go res.loop()

	return res, nil
}

// Кольцевое подключение к шлюзу
func (m *Websocket) loop() {
	defer close(m.done)
	m.log.Info("старт работы модуля")
	for {
		select {
		case <-m.ctx.Done():
			m.log.Info("завершение работы модуля")
			return
		default:
		}

		if err := m.connect(); err != nil && errors.Cause(err) != context.Canceled {
			select {
			case <-m.ctx.Done():
			case <-time.After(m.reconnectTimeout):
			}
		}
	}
}

func (m *Websocket) setConnected(flag connectType) (changed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed = m.connectedFlag != flag
	m.connectedFlag = flag
	return
}

func (m *Websocket) isConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectedFlag == connectSuccess
}

// Подключение по WebSocket к шлюзу
func (m *Websocket) connect() error {
	conn, _, err := websocket.DefaultDialer.DialContext(m.ctx, m.url, nil)
	if err != nil {
		if m.setConnected(connectFailed) {
			m.log.Warnf("ошибка подключения: %v", err)
		}
		return errors.Trace(err)
	}
	defer func() { _ = conn.Close() }()

	// Подписки восстанавливаются до запуска писателя, пока соединение принадлежит только нам.
	// Подписки, оформленные позже, уходят через writeChan
	m.mu.Lock()
	topics := make([]string, 0, len(m.subs))
	for topic := range m.subs {
		topics = append(topics, topic)
	}
	changed := m.connectedFlag != connectSuccess
	m.connectedFlag = connectSuccess
	m.mu.Unlock()
	defer m.setConnected(connectFailed)
	if changed {
		m.log.Infof("подключение установлено")
	}
	for _, topic := range topics {
		if err = conn.WriteMessage(websocket.TextMessage, m.frame(model.FrameSubscribe, topic, nil)); err != nil {
			return errors.Annotatef(err, "ошибка подписки на %s", topic)
		}
	}

	g, gctx := errgroup.WithContext(m.ctx)

	// Разрыв соединения при завершении, чтобы разблокировать чтение
	g.Go(func() error {
		<-gctx.Done()
		_ = conn.Close()
		return nil
	})

	// Чтение из канала
	g.Go(func() error {
		for {
			tpe, message, err := conn.ReadMessage()
			if err != nil {
				if gctx.Err() != nil || strings.Contains(err.Error(), "use of closed network connection") {
					return gctx.Err()
				}
				m.log.Warnf("ошибка чтения из WebSocket: %v", err)
				return errors.Trace(err)
			}
			if tpe != websocket.TextMessage {
				m.log.Warnf("пропущено нетиповое послание типа %d, размера %d", tpe, len(message))
				continue
			}

			var frame model.GatewayFrame
			if err = json.Unmarshal(message, &frame); err != nil {
				m.log.Errorf("не удалось распаковать кадр шлюза: %v", err)
				continue
			}
			if frame.Action != model.FramePublish {
				continue
			}
			m.mu.Lock()
			sub, ok := m.subs[frame.Topic]
			m.mu.Unlock()
			if ok {
				sub.deliver([]byte(frame.Payload))
			}
		}
	})

	// Запись в канал
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case write := <-m.writeChan:
				if err := conn.WriteMessage(websocket.TextMessage, write); err != nil {
					m.log.Warnf("ошибка записи в WebSocket: %v", err)
					return errors.Trace(err)
				}
			}
		}
	})

	return errors.Trace(g.Wait())
}

func (m *Websocket) frame(action, topic string, payload []byte) []byte {
	// Кадр из строк всегда сериализуется без ошибок
	res, _ := json.Marshal(model.GatewayFrame{
		Action:  action,
		Topic:   topic,
		Payload: string(payload),
		Session: m.session,
	})
	return res
}

func (m *Websocket) send(frame []byte) error {
	select {
	case m.writeChan <- frame:
		return nil
	default:
		m.log.Warn("канал передачи данных writeChan забит")
		return errors.New("канал передачи данных забит")
	}
}

// Publish ставит payload в очередь отправки шлюзу
func (m *Websocket) Publish(topic string, payload []byte) error {
	if !m.isConnected() {
		return errors.Errorf("нет подключения к шлюзу, сообщение в %s не отправлено", topic)
	}
	return m.send(m.frame(model.FramePublish, topic, payload))
}

// Subscribe подписка на канал topic. Канал результата закрывается при завершении ctx
func (m *Websocket) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	m.mu.Lock()
	if _, ok := m.subs[topic]; ok {
		m.mu.Unlock()
		return nil, errors.AlreadyExistsf("подписка на %s", topic)
	}
	sub := newSubscription(topic, m.log)
	m.subs[topic] = sub
	connected := m.connectedFlag == connectSuccess
	m.mu.Unlock()

	if connected {
		if err := m.send(m.frame(model.FrameSubscribe, topic, nil)); err != nil {
			m.log.Warnf("подписка на %s будет оформлена при переподключении: %v", topic, err)
		}
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-m.done:
		}
		m.mu.Lock()
		delete(m.subs, topic)
		m.mu.Unlock()
		sub.close()
	}()
	return sub.ch, nil
}

// Close разрыв соединения и завершение цикла подключения
func (m *Websocket) Close() error {
	m.cancel()
	<-m.done
	return nil
}
