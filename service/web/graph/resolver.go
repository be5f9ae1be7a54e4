package graph

import (
	"io/ioutil"
	"sync"

	"github.com/kirsrus/termopad/agent/model"
	modelGraphQl "github.com/kirsrus/termopad/agent/service/web/graph/model"
	"github.com/kirsrus/termopad/agent/store"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

const (
	// Величина канала подписчика на телеметрию
	subscribeCapacity = 10
	dateFormat        = "2006.01.02 15:04:05"
)

// Resolver резолвер GraphQL. Инициируется NewResolver
type Resolver struct {
	log *logrus.Entry

	telemetrySubscribePool *sync.Map

	thresholds store.ThresholdStore
	db         store.DbStore

	state func() model.SamplerState
	last  func() (*model.TelemetryEvent, bool)
}

// ConfigResolver конфигурация структуры Resolver
type ConfigResolver struct {
	Log *logrus.Logger

	// Состояние цикла опроса датчика
	State func() model.SamplerState
	// Последняя запись телеметрии, если она ещё не устарела
	Last func() (*model.TelemetryEvent, bool)
}

// NewResolver конструктор Resolver. db может отсутствовать, тогда история недоступна
func NewResolver(thresholds store.ThresholdStore, db store.DbStore, config *ConfigResolver) (*Resolver, error) {
	if config == nil {
		return nil, errors.New("конфигурация не передана")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if thresholds == nil {
		return nil, errors.New("не передано хранилище порогов")
	}

	resolver := Resolver{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "graphql",
			"scope":  "service",
		}),
		telemetrySubscribePool: new(sync.Map),

		thresholds: thresholds,
		db:         db,

		state: config.State,
		last:  config.Last,
	}
	if resolver.state == nil {
		resolver.state = func() model.SamplerState { return model.StateIdle }
	}
	if resolver.last == nil {
		resolver.last = func() (*model.TelemetryEvent, bool) { return nil, false }
	}

	return &resolver, nil
}

// TelemetryChanged рассылка новой записи телеметрии подписчикам. Подписчик с
// переполненным каналом пропускает запись
func (r *Resolver) TelemetryChanged(event model.TelemetryEvent) {
	telemetry := newTelemetry(event)
	r.telemetrySubscribePool.Range(func(key, value interface{}) bool {
		inChan, ok := value.(chan *modelGraphQl.Telemetry)
		if !ok {
			r.log.Errorf("в пуле telemetrySubscribePool неожиданный тип данных: %T", value)
			return true
		}
		select {
		case inChan <- telemetry:
		default:
			r.log.Warnf("канал %s из telemetrySubscribePool переполнен", key)
		}
		return true
	})
}

// Subscribers количество подписчиков на телеметрию
func (r *Resolver) Subscribers() int {
	var res int
	r.telemetrySubscribePool.Range(func(_, _ interface{}) bool {
		res++
		return true
	})
	return res
}

func newThresholds(t model.Thresholds) *modelGraphQl.Thresholds {
	return &modelGraphQl.Thresholds{
		TresholdMin:         int(t.MinNormal),
		TresholdMax:         int(t.MaxNormal),
		CriticalTresholdMin: int(t.MinCritical),
		CriticalTresholdMax: int(t.MaxCritical),
	}
}

func newTelemetry(event model.TelemetryEvent) *modelGraphQl.Telemetry {
	t := event.Telemetry
	return &modelGraphQl.Telemetry{
		Update:        event.CreateAt.Format(dateFormat),
		Time:          int(t.Time),
		Temperature:   t.Temperature.Float(),
		Reference:     float64(event.Reading.ReferenceSixteenths) / 16,
		Thresholds:    newThresholds(t.Thresholds()),
		Level:         string(event.Level),
		TempFault:     t.TempFault == 1,
		OpenCircuit:   t.OpenCircuit == 1,
		ShortGnd:      t.ShortGND == 1,
		ShortVcc:      t.ShortVCC == 1,
		BusError:      event.Reading.BusError,
		PublishFailed: event.PublishFailed,
	}
}

func intp(v *int16) *int {
	if v == nil {
		return nil
	}
	res := int(*v)
	return &res
}
