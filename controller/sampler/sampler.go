package sampler

import (
	"context"
	"io/ioutil"
	"sync/atomic"
	"time"

	"github.com/kirsrus/termopad/agent/model"
	"github.com/kirsrus/termopad/agent/pkg/max31855"
	"github.com/kirsrus/termopad/agent/pkg/metric"
	"github.com/kirsrus/termopad/agent/pkg/tool"
	"github.com/kirsrus/termopad/agent/pkg/validator"
	"github.com/kirsrus/termopad/agent/service"
	"github.com/kirsrus/termopad/agent/store"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

const (
	period      = 5 * time.Second
	selectDelay = time.Millisecond
	settleDelay = time.Millisecond
	// Величина канала записей телеметрии для внутренних потребителей
	eventCapacity = 10
)

// Шаблоны сообщений при смене уровня тревоги
var levelTemplates = map[model.Level]string{
	model.LevelNormal:       "температура в норме (%s°)",
	model.LevelLow:          "температура ниже нормы (%s°)",
	model.LevelHigh:         "температура выше нормы (%s°)",
	model.LevelCriticalLow:  "критически низкая температура (%s°)",
	model.LevelCriticalHigh: "критически высокая температура (%s°)",
	model.LevelFault:        "неисправность датчика (%s°)",
}

// Sampler цикл опроса датчика. Инициируется через NewSampler. Каждый период читает отсчёт
// по шине, дополняет его порогами и публикует запись телеметрии
type Sampler struct {
	ctx       context.Context
	log       *logrus.Entry
	bus       service.BusSvc
	transport service.TransportSvc
	store     store.ThresholdStore
	metrics   *metric.Metrics

	clock tool.Clock
	unix  func() int64

	topic            string
	period           time.Duration
	selectDelay      time.Duration
	settleDelay      time.Duration
	preciseReference bool

	state atomic.Int32
	level model.Level
	event chan *model.TelemetryEvent
}

// ConfigSampler конфигурация Sampler
type ConfigSampler struct {
	Log     *logrus.Logger
	Metrics *metric.Metrics
	// Источник времени. По умолчанию системные часы
	Clock tool.Clock

	Topic            string `conform:"trim" validate:"required"`
	Period           time.Duration
	SelectDelay      time.Duration
	SettleDelay      time.Duration
	PreciseReference bool
	EventCapacity    uint
}

// NewSampler конструктор Sampler
func NewSampler(ctx context.Context, bus service.BusSvc, transport service.TransportSvc, thresholds store.ThresholdStore, config *ConfigSampler) (*Sampler, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	} else if err := validator.Get().ValidateWithConform(config); err != nil {
		return nil, errors.Annotate(err, "ошибка в конфигурации")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if bus == nil {
		return nil, errors.New("не указана шина bus")
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

	res := &Sampler{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "sampler",
			"scope":  "controller",
		}),
		bus:              bus,
		transport:        transport,
		store:            thresholds,
		metrics:          config.Metrics,
		clock:            config.Clock,
		unix:             tool.Monotonic(config.Clock),
		topic:            config.Topic,
		period:           period,
		selectDelay:      selectDelay,
		settleDelay:      settleDelay,
		preciseReference: config.PreciseReference,
	}
	if config.Period != 0 {
		res.period = config.Period
	}
	if config.SelectDelay != 0 {
		res.selectDelay = config.SelectDelay
	}
	if config.SettleDelay != 0 {
		res.settleDelay = config.SettleDelay
	}
	capacity := uint(eventCapacity)
	if config.EventCapacity != 0 {
		capacity = config.EventCapacity
	}
	res.event = make(chan *model.TelemetryEvent, capacity)

	return res, nil
}

// State текущее состояние цикла
func (m *Sampler) State() model.SamplerState {
	return model.SamplerState(m.state.Load())
}

// Serve цикл опроса. Завершение контекста проверяется только между обменами по шине
func (m *Sampler) Serve() error {
	m.log.Infof("старт работы модуля, период %s, канал %s", m.period, m.topic)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-m.ctx.Done():
			m.log.Info("завершение работы модуля")
			return nil
		case <-timer.C:
		}

		m.Sample()
		timer.Reset(m.period)
	}
}

// Sample один период опроса: чтение, декодирование, публикация
func (m *Sampler) Sample() *model.TelemetryEvent {
	start := time.Now()

	raw, err := m.transaction()
	reading := max31855.Decode(raw)
	if err != nil {
		m.log.Warnf("ошибка обмена по шине: %v", err)
		m.metrics.BusErrors.Inc()
		reading.MarkBusError()
	}

	thresholds := m.store.Read()
	event := &model.TelemetryEvent{
		CreateAt:  m.clock(),
		Telemetry: model.NewTelemetry(m.unix(), reading, thresholds),
		Reading:   reading,
		Level:     thresholds.Classify(reading),
	}

	payload, err := event.Telemetry.Marshal()
	if err != nil {
		m.log.Error(err)
		m.metrics.EncodeErrors.Inc()
		event.PublishFailed = true
	} else if err = m.transport.Publish(m.topic, payload); err != nil {
		m.log.Warnf("ошибка публикации телеметрии: %v", err)
		m.metrics.PublishErrors.Inc()
		event.PublishFailed = true
	} else {
		m.metrics.Published.Inc()
		m.log.Debugf("опубликовано: %s", payload)
	}

	m.metrics.ObserveReading(reading, event.Level, m.preciseReference)
	m.metrics.SetThresholds(thresholds)
	m.metrics.SampleLatency.Observe(time.Since(start).Seconds())
	m.levelChanged(event)

	select {
	case m.event <- event:
	default:
		m.log.Warn("очередь event переполнена")
	}
	return event
}

// Обмен по шине: выбор датчика, два 16-битных слова, освобождение линии выбора.
// Линия освобождается при любом исходе
func (m *Sampler) transaction() (raw model.RawSample, err error) {
	m.state.Store(int32(model.StateSelecting))
	defer m.state.Store(int32(model.StateIdle))

	if err = m.bus.Select(true); err != nil {
		m.deselect()
		return raw, errors.Annotate(err, "ошибка выбора датчика")
	}
	defer m.deselect()

	time.Sleep(m.selectDelay)
	if raw.High, err = m.bus.Transfer(0); err != nil {
		return raw, errors.Annotate(err, "ошибка чтения старшего слова")
	}
	if raw.Low, err = m.bus.Transfer(0); err != nil {
		return raw, errors.Annotate(err, "ошибка чтения младшего слова")
	}
	time.Sleep(m.settleDelay)
	return raw, nil
}

func (m *Sampler) deselect() {
	if err := m.bus.Select(false); err != nil {
		m.log.Warnf("ошибка освобождения линии выбора датчика: %v", err)
	}
}

// Логирование смены уровня тревоги
func (m *Sampler) levelChanged(event *model.TelemetryEvent) {
	if event.Level == m.level {
		return
	}
	template, ok := levelTemplates[event.Level]
	if !ok {
		template = "уровень " + string(event.Level) + " (%s°)"
	}
	entry := m.log.WithField("alarm", event.Level)
	if event.Level.Severity() == 0 {
		entry.Infof(template, event.Telemetry.Temperature)
	} else {
		entry.Warnf(template, event.Telemetry.Temperature)
	}
	m.level = event.Level
}

// EmmitTelemetry ожидает очередную запись телеметрии. Возвращает context.Canceled при
// принудительном завершении работы
func (m *Sampler) EmmitTelemetry() (*model.TelemetryEvent, error) {
	if err := m.ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case <-m.ctx.Done():
		return nil, m.ctx.Err()
	case event := <-m.event:
		return event, nil
	}
}
