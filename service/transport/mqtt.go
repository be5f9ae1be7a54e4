package transport

import (
	"context"
	"io/ioutil"
	"sync"
	"time"

	"github.com/kirsrus/termopad/agent/service"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

const (
	connectTimeout   = 10 * time.Second
	reconnectTimeout = 5 * time.Second
	disconnectQuiet  = 250 // мс
)

// Mqtt транспорт через брокер MQTT. Инициируется через NewMqtt. Переподключение
// выполняет сам клиент paho, подписки восстанавливаются при каждом подключении
type Mqtt struct {
	log    *logrus.Entry
	client mqtt.Client
	qos    byte

	mu   sync.Mutex
	subs map[string]*subscription
}

// ConfigMqtt конфигурация Mqtt
type ConfigMqtt struct {
	Log            *logrus.Logger
	Broker         string `conform:"trim" validate:"required,broker"`
	ClientID       string `conform:"trim"`
	Username       string
	Password       string
	Qos            byte `validate:"max=2"`
	ConnectTimeout time.Duration
}

// NewMqtt конструктор Mqtt. Если брокер недоступен дольше ConnectTimeout, транспорт
// создаётся и продолжает попытки подключения в фоне
func NewMqtt(config *ConfigMqtt) (service.TransportSvc, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	}
	if err := validatorGet().ValidateWithConform(config); err != nil {
		return nil, errors.Annotate(err, "ошибка в конфигурации")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if config.ClientID == "" {
		config.ClientID = "thermo-" + uuid.New().String()
	}
	timeout := connectTimeout
	if config.ConnectTimeout != 0 {
		timeout = config.ConnectTimeout
	}

	res := &Mqtt{
		log: config.Log.WithFields(map[string]interface{}{
			"module":  "mqtt",
			"scope":   "transport",
			"address": config.Broker,
			"client":  config.ClientID,
		}),
		qos:  config.Qos,
		subs: make(map[string]*subscription),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(config.Broker).
		SetClientID(config.ClientID).
		SetUsername(config.Username).
		SetPassword(config.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(reconnectTimeout).
		SetMaxReconnectInterval(time.Minute).
		SetConnectTimeout(timeout).
		SetOnConnectHandler(res.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			res.log.Warnf("подключение потеряно: %v", err)
		})
	res.client = mqtt.NewClient(opts)

	token := res.client.Connect()
	if !token.WaitTimeout(timeout) {
		res.log.Warnf("брокер не ответил за %s, подключение продолжается в фоне", timeout)
	} else if token.Error() != nil {
		return nil, errors.Annotate(token.Error(), "ошибка подключения к брокеру")
	}
	return res, nil
}

// Восстановление подписок при (пере)подключении
func (m *Mqtt) onConnect(client mqtt.Client) {
	m.log.Info("подключение установлено")
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subs {
		m.subscribe(client, sub)
	}
}

func (m *Mqtt) subscribe(client mqtt.Client, sub *subscription) {
	token := client.Subscribe(sub.topic, m.qos, func(_ mqtt.Client, msg mqtt.Message) {
		sub.deliver(msg.Payload())
	})
	go func() {
		token.Wait()
		if token.Error() != nil {
			m.log.Warnf("ошибка подписки на %s: %v", sub.topic, token.Error())
			return
		}
		m.log.Debugf("подписка на %s оформлена", sub.topic)
	}()
}

// Publish публикует payload без ожидания подтверждения. Ошибка доставки только логируется
func (m *Mqtt) Publish(topic string, payload []byte) error {
	if !m.client.IsConnectionOpen() {
		return errors.Errorf("нет подключения к брокеру, сообщение в %s не отправлено", topic)
	}
	token := m.client.Publish(topic, m.qos, false, payload)
	go func() {
		token.Wait()
		if token.Error() != nil {
			m.log.Warnf("ошибка публикации в %s: %v", topic, token.Error())
		}
	}()
	return nil
}

// Subscribe подписка на канал topic. Канал результата закрывается при завершении ctx
func (m *Mqtt) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	m.mu.Lock()
	if _, ok := m.subs[topic]; ok {
		m.mu.Unlock()
		return nil, errors.AlreadyExistsf("подписка на %s", topic)
	}
	sub := newSubscription(topic, m.log)
	m.subs[topic] = sub
	if m.client.IsConnectionOpen() {
		m.subscribe(m.client, sub)
	}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, topic)
		m.mu.Unlock()
		if m.client.IsConnectionOpen() {
			m.client.Unsubscribe(topic)
		}
		sub.close()
	}()
	return sub.ch, nil
}

// Close отключение от брокера
func (m *Mqtt) Close() error {
	m.mu.Lock()
	for topic, sub := range m.subs {
		sub.close()
		delete(m.subs, topic)
	}
	m.mu.Unlock()
	m.client.Disconnect(disconnectQuiet)
	m.log.Info("отключение от брокера")
	return nil
}
