package listener

import (
	"context"
	"io/ioutil"
	"time"

	"github.com/kirsrus/termopad/agent/model"
	"github.com/kirsrus/termopad/agent/pkg/metric"
	"github.com/kirsrus/termopad/agent/pkg/tool"
	"github.com/kirsrus/termopad/agent/pkg/validator"
	"github.com/kirsrus/termopad/agent/service"
	"github.com/kirsrus/termopad/agent/store"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

const (
	// Максимальный размер сообщения конфигурации
	maxPayload = 256
	// Пауза перед повторной подпиской при потере подписки
	resubscribeTimeout = 5 * time.Second
)

// Listener приём обновлений порогов тревоги. Инициируется через NewListener.
// Никогда не обращается к шине и не публикует телеметрию
type Listener struct {
	ctx        context.Context
	log        *logrus.Entry
	transport  service.TransportSvc
	store      store.ThresholdStore
	dbStore    store.DbStore
	metrics    *metric.Metrics
	clock      tool.Clock
	topic      string
	maxPayload int

	resubscribeTimeout time.Duration
}

// ConfigListener конфигурация Listener
type ConfigListener struct {
	Log     *logrus.Logger
	Metrics *metric.Metrics
	Clock   tool.Clock
	// Архив для журнала изменений порогов. Может отсутствовать
	DbStore store.DbStore

	Topic      string `conform:"trim" validate:"required"`
	MaxPayload int    `validate:"gte=0"`

	ResubscribeTimeout time.Duration
}

// NewListener конструктор Listener
func NewListener(ctx context.Context, transport service.TransportSvc, thresholds store.ThresholdStore, config *ConfigListener) (*Listener, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	} else if err := validator.Get().ValidateWithConform(config); err != nil {
		return nil, errors.Annotate(err, "ошибка в конфигурации")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if transport == nil {
		return nil, errors.New("не указан транспорт transport")
	}
	if thresholds == nil {
		return nil, errors.New("не указано хранилище порогов thresholds")
	}
	if config.Metrics == nil {
		config.Metrics = metric.New(nil)
	}
	if config.Clock == nil {
		config.Clock = tool.SystemClock
	}

	res := &Listener{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "listener",
			"scope":  "controller",
			"topic":  config.Topic,
		}),
		transport:  transport,
		store:      thresholds,
		dbStore:    config.DbStore,
		metrics:    config.Metrics,
		clock:      config.Clock,
		topic:      config.Topic,
		maxPayload: maxPayload,

		resubscribeTimeout: resubscribeTimeout,
	}
	if config.MaxPayload != 0 {
		res.maxPayload = config.MaxPayload
	}
	if config.ResubscribeTimeout != 0 {
		res.resubscribeTimeout = config.ResubscribeTimeout
	}
	return res, nil
}

// Serve подписывается на канал конфигурации и применяет поступающие обновления.
// Ошибки разбора и потеря подписки не прерывают работу: подписка восстанавливается
// через resubscribeTimeout. Завершается только по отмене контекста
func (m *Listener) Serve() error {
	m.log.Info("старт работы модуля")
	for {
		if err := m.listen(); err != nil {
			m.log.Warnf("%v, повторная подписка через %s", err, m.resubscribeTimeout)
		}
		select {
		case <-m.ctx.Done():
			m.log.Info("завершение работы модуля")
			return nil
		case <-time.After(m.resubscribeTimeout):
		}
	}
}

// Одна подписка на канал конфигурации. Возвращает nil при отмене контекста
func (m *Listener) listen() error {
	messages, err := m.transport.Subscribe(m.ctx, m.topic)
	if err != nil {
		return errors.Annotatef(err, "ошибка подписки на %s", m.topic)
	}
	for {
		select {
		case <-m.ctx.Done():
			return nil
		case payload, ok := <-messages:
			if !ok {
				if m.ctx.Err() != nil {
					return nil
				}
				return errors.Errorf("подписка на %s закрыта транспортом", m.topic)
			}
			if _, err := m.Handle(payload); err != nil {
				m.log.Warnf("сообщение отброшено: %v", err)
				m.metrics.ConfigRejected.Inc()
			}
		}
	}
}

// Handle разбирает одно сообщение и применяет его к хранилищу порогов. Возвращает
// итоговые пороги
func (m *Listener) Handle(payload []byte) (model.Thresholds, error) {
	if len(payload) > m.maxPayload {
		return model.Thresholds{}, errors.Errorf("размер сообщения %d превышает %d байт", len(payload), m.maxPayload)
	}
	var message model.ThresholdsMessage
	update, err := message.Parse(payload)
	if err != nil {
		return model.Thresholds{}, errors.Trace(err)
	}
	if update.IsEmpty() {
		m.log.Debug("сообщение без порогов, изменений нет")
		return m.store.Read(), nil
	}

	result := m.store.Apply(update)
	m.metrics.ConfigApplied.Inc()
	m.metrics.SetThresholds(result)
	m.log.Infof("пороги изменены: %s", result)

	if m.dbStore != nil {
		if err = m.dbStore.SetThresholdsLog(m.clock(), update, result); err != nil {
			m.log.Warnf("ошибка записи журнала порогов: %v", err)
		}
	}
	return result, nil
}
