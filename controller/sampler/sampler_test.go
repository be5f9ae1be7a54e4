package sampler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kirsrus/termopad/agent/model"
	"github.com/kirsrus/termopad/agent/pkg/metric"
	"github.com/kirsrus/termopad/agent/store/threshold"

	"github.com/juju/errors"
	"github.com/k0kubun/pp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Шина, отдающая заранее заданные слова и запоминающая состояние линии выбора
type fakeBus struct {
	mu       sync.Mutex
	words    []uint16
	failAt   int // номер обмена (с 1), на котором вернуть ошибку
	calls    int
	selected bool
	selects  int
}

func (m *fakeBus) Transfer(uint16) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if !m.selected {
		return 0xFFFF, errors.New("датчик не выбран")
	}
	if m.failAt != 0 && m.calls == m.failAt {
		return 0xFFFF, errors.New("сбой шины")
	}
	if len(m.words) == 0 {
		return 0, nil
	}
	w := m.words[0]
	m.words = append(m.words[1:], w)
	return w, nil
}

func (m *fakeBus) Select(active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = active
	if active {
		m.selects++
	}
	return nil
}

func (m *fakeBus) Close() error { return nil }

func (m *fakeBus) isSelected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}

// Транспорт, запоминающий публикации
type fakeTransport struct {
	mu        sync.Mutex
	published []string
	topics    []string
	err       error
}

func (m *fakeTransport) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.topics = append(m.topics, topic)
	m.published = append(m.published, string(payload))
	return nil
}

func (m *fakeTransport) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.NotSupportedf("подписка")
}

func (m *fakeTransport) Close() error { return nil }

func (m *fakeTransport) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

func fixedClock() time.Time {
	return time.Unix(1700000000, 0)
}

func newTestSampler(t *testing.T, ctx context.Context, bus *fakeBus, transport *fakeTransport, store *threshold.Threshold) (*Sampler, *metric.Metrics) {
	metrics := metric.New(nil)
	s, err := NewSampler(ctx, bus, transport, store, &ConfigSampler{
		Metrics:     metrics,
		Clock:       fixedClock,
		Topic:       "thermo/telemetry",
		Period:      10 * time.Millisecond,
		SelectDelay: time.Microsecond,
		SettleDelay: time.Microsecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s, metrics
}

func TestNewSampler(t *testing.T) {
	store := threshold.NewThreshold()
	tests := []struct {
		name      string
		config    *ConfigSampler
		bus       *fakeBus
		transport *fakeTransport
		wantErr   bool
	}{
		{name: "без конфигурации", config: nil, bus: &fakeBus{}, transport: &fakeTransport{}, wantErr: true},
		{name: "без канала", config: &ConfigSampler{Topic: " "}, bus: &fakeBus{}, transport: &fakeTransport{}, wantErr: true},
		{name: "без шины", config: &ConfigSampler{Topic: "t"}, bus: nil, transport: &fakeTransport{}, wantErr: true},
		{name: "без транспорта", config: &ConfigSampler{Topic: "t"}, bus: &fakeBus{}, transport: nil, wantErr: true},
		{name: "корректный", config: &ConfigSampler{Topic: "t"}, bus: &fakeBus{}, transport: &fakeTransport{}, wantErr: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Интерфейсы с nil-указателем внутри не равны nil, поэтому передаём явный nil
			var (
				err error
				got *Sampler
			)
			switch {
			case tt.bus == nil:
				got, err = NewSampler(context.Background(), nil, tt.transport, store, tt.config)
			case tt.transport == nil:
				got, err = NewSampler(context.Background(), tt.bus, nil, store, tt.config)
			default:
				got, err = NewSampler(context.Background(), tt.bus, tt.transport, store, tt.config)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSampler() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got.period != period {
				t.Errorf("период по умолчанию %s, ожидался %s", got.period, period)
			}
		})
	}
}

func TestSample(t *testing.T) {
	tests := []struct {
		name       string
		words      []uint16
		failAt     int
		update     model.ThresholdsUpdate
		want       string
		wantLevel  model.Level
		wantBusErr float64
	}{
		{
			name:  "сквозной отсчёт 0x0C80/0x0140",
			words: []uint16{0x0C80, 0x0140},
			want: `{"time":1700000000,"temperature":200.00,"tresholdMin":32767,"tresholdMax":32767,` +
				`"criticalTresholdMin":32767,"criticalTresholdMax":32767,"tempFault":0,"openCircuit":0,"shortGND":0,"shortVCC":0}`,
			wantLevel: model.LevelNormal,
		},
		{
			name:  "обрыв термопары",
			words: []uint16{0x0C81, 0x0141},
			want: `{"time":1700000000,"temperature":200.00,"tresholdMin":32767,"tresholdMax":32767,` +
				`"criticalTresholdMin":32767,"criticalTresholdMax":32767,"tempFault":1,"openCircuit":1,"shortGND":0,"shortVCC":0}`,
			wantLevel: model.LevelFault,
		},
		{
			name:   "отрицательная температура и пороги",
			words:  []uint16{0xFF5C, 0x0000},
			update: model.ThresholdsUpdate{MinNormal: int16p(0), MaxCritical: int16p(300)},
			want: `{"time":1700000000,"temperature":-10.25,"tresholdMin":0,"tresholdMax":32767,` +
				`"criticalTresholdMin":32767,"criticalTresholdMax":300,"tempFault":0,"openCircuit":0,"shortGND":0,"shortVCC":0}`,
			wantLevel: model.LevelLow,
		},
		{
			name:   "ошибка шины на втором слове",
			words:  []uint16{0x0C80, 0x0140},
			failAt: 2,
			want: `{"time":1700000000,"temperature":200.00,"tresholdMin":32767,"tresholdMax":32767,` +
				`"criticalTresholdMin":32767,"criticalTresholdMax":32767,"tempFault":1,"openCircuit":1,"shortGND":1,"shortVCC":1}`,
			wantLevel:  model.LevelFault,
			wantBusErr: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &fakeBus{words: tt.words, failAt: tt.failAt}
			transport := &fakeTransport{}
			store := threshold.NewThreshold()
			store.Apply(tt.update)
			s, metrics := newTestSampler(t, context.Background(), bus, transport, store)

			event := s.Sample()
			t.Log(pp.Sprint(event))

			if transport.count() != 1 {
				t.Fatalf("опубликовано %d записей, ожидалась 1", transport.count())
			}
			if transport.published[0] != tt.want {
				t.Errorf("payload\n got %s\nwant %s", transport.published[0], tt.want)
			}
			if transport.topics[0] != "thermo/telemetry" {
				t.Errorf("канал %s", transport.topics[0])
			}
			if event.Level != tt.wantLevel {
				t.Errorf("уровень %s, ожидался %s", event.Level, tt.wantLevel)
			}
			if bus.isSelected() {
				t.Error("линия выбора датчика не освобождена")
			}
			if s.State() != model.StateIdle {
				t.Errorf("состояние %s после периода", s.State())
			}
			if got := testutil.ToFloat64(metrics.BusErrors); got != tt.wantBusErr {
				t.Errorf("bus_errors_total = %v, want %v", got, tt.wantBusErr)
			}
			if got := testutil.ToFloat64(metrics.Published); got != 1 {
				t.Errorf("published_total = %v, want 1", got)
			}
		})
	}
}

func TestSamplePublishError(t *testing.T) {
	transport := &fakeTransport{err: errors.New("брокер недоступен")}
	s, metrics := newTestSampler(t, context.Background(), &fakeBus{words: []uint16{0x0C80, 0x0140}}, transport, threshold.NewThreshold())

	event := s.Sample()
	if !event.PublishFailed {
		t.Error("ошибка публикации не отмечена в событии")
	}
	if got := testutil.ToFloat64(metrics.PublishErrors); got != 1 {
		t.Errorf("publish_errors_total = %v, want 1", got)
	}
	// Событие для внутренних потребителей формируется и при ошибке публикации
	if got, err := s.EmmitTelemetry(); err != nil || got != event {
		t.Errorf("EmmitTelemetry() = %v, %v", got, err)
	}
}

func TestServe(t *testing.T) {
	bus := &fakeBus{words: []uint16{0x0C80, 0x0140}}
	transport := &fakeTransport{}
	store := threshold.NewThreshold()
	ctx, cancel := context.WithCancel(context.Background())
	s, _ := newTestSampler(t, ctx, bus, transport, store)

	done := make(chan error, 1)
	go func() { done <- s.Serve() }()

	t.Run("пороги применяются к следующему периоду", func(t *testing.T) {
		first, err := s.EmmitTelemetry()
		if err != nil {
			t.Fatal(err)
		}
		if first.Telemetry.TresholdMax != model.Unset {
			t.Errorf("tresholdMax = %d до обновления", first.Telemetry.TresholdMax)
		}
		store.Apply(model.ThresholdsUpdate{MaxNormal: int16p(50)})

		deadline := time.After(5 * time.Second)
		for {
			select {
			case <-deadline:
				t.Fatal("обновление порогов не дошло до телеметрии")
			default:
			}
			event, err := s.EmmitTelemetry()
			if err != nil {
				t.Fatal(err)
			}
			if event.Telemetry.TresholdMax == 50 {
				if event.Level != model.LevelHigh {
					t.Errorf("уровень %s при 200° и пороге 50", event.Level)
				}
				return
			}
		}
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() не завершился после отмены контекста")
	}
	if bus.isSelected() {
		t.Error("линия выбора датчика не освобождена после завершения")
	}
	if _, err := s.EmmitTelemetry(); errors.Cause(err) != context.Canceled {
		t.Errorf("EmmitTelemetry() после отмены = %v", err)
	}
}

func int16p(v int16) *int16 { return &v }
