package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kirsrus/termopad/agent/model"
	"github.com/kirsrus/termopad/agent/store"

	"github.com/juju/errors"
)

// Опросчик, выдающий заранее заданные записи
type fakeSampler struct {
	ctx    context.Context
	events chan *model.TelemetryEvent
}

func (m *fakeSampler) Serve() error {
	<-m.ctx.Done()
	return nil
}

func (m *fakeSampler) State() model.SamplerState { return model.StateIdle }

func (m *fakeSampler) EmmitTelemetry() (*model.TelemetryEvent, error) {
	select {
	case <-m.ctx.Done():
		return nil, m.ctx.Err()
	case e := <-m.events:
		return e, nil
	}
}

type fakeListener struct {
	ctx context.Context
	err error
}

func (m *fakeListener) Serve() error {
	if m.err != nil {
		return m.err
	}
	<-m.ctx.Done()
	return nil
}

// Потребитель телеметрии (WEB и архив одновременно)
type fakeConsumer struct {
	store.DbStore
	mu      sync.Mutex
	web     []model.TelemetryEvent
	db      []model.TelemetryEvent
	cleaned []int
}

func (m *fakeConsumer) Serve(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (m *fakeConsumer) TelemetryChanged(e model.TelemetryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.web = append(m.web, e)
}

func (m *fakeConsumer) SetTelemetry(e model.TelemetryEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.db = append(m.db, e)
	return nil
}

func (m *fakeConsumer) Clean(days int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleaned = append(m.cleaned, days)
	return nil
}

func (m *fakeConsumer) counts() (web, db, cleaned int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.web), len(m.db), len(m.cleaned)
}

func TestNewManager(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		config  *ConfigManager
		wantErr bool
	}{
		{name: "без конфигурации", config: nil, wantErr: true},
		{name: "без опросчика", config: &ConfigManager{ListenerCtl: &fakeListener{ctx: ctx}}, wantErr: true},
		{name: "без приёмника", config: &ConfigManager{SamplerCtl: &fakeSampler{ctx: ctx}}, wantErr: true},
		{name: "корректный", config: &ConfigManager{SamplerCtl: &fakeSampler{ctx: ctx}, ListenerCtl: &fakeListener{ctx: ctx}}, wantErr: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewManager(ctx, tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewManager() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got.cleanBaseDays != cleanBaseDays {
				t.Errorf("cleanBaseDays = %d", got.cleanBaseDays)
			}
		})
	}
}

func TestServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sampler := &fakeSampler{ctx: ctx, events: make(chan *model.TelemetryEvent)}
	consumer := &fakeConsumer{}
	m, err := NewManager(ctx, &ConfigManager{
		Cancel:            cancel,
		SamplerCtl:        sampler,
		ListenerCtl:       &fakeListener{ctx: ctx},
		WebSvc:            consumer,
		DbStore:           consumer,
		CleanBaseDays:     7,
		CleanBaseInterval: time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- m.Serve() }()

	for i := 0; i < 3; i++ {
		sampler.events <- &model.TelemetryEvent{Level: model.LevelNormal}
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		web, db, cleaned := consumer.counts()
		if web == 3 && db == 3 && cleaned == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("web=%d db=%d cleaned=%d", web, db, cleaned)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if consumer.cleaned[0] != 7 {
		t.Errorf("очистка за %d дней", consumer.cleaned[0])
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() не завершился после отмены контекста")
	}
}

func TestServeFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m, err := NewManager(ctx, &ConfigManager{
		Cancel:      cancel,
		SamplerCtl:  &fakeSampler{ctx: ctx},
		ListenerCtl: &fakeListener{ctx: ctx, err: errors.New("подписка отклонена")},
	})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- m.Serve() }()
	select {
	case err := <-done:
		if err == nil {
			t.Error("ожидалась ошибка приёмника конфигурации")
		}
		if ctx.Err() == nil {
			t.Error("общий контекст не отменён")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() не завершился после ошибки модуля")
	}
}
