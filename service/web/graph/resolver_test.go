package graph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirsrus/termopad/agent/model"
	"github.com/kirsrus/termopad/agent/store"
	"github.com/kirsrus/termopad/agent/store/threshold"

	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/juju/errors"
	"github.com/k0kubun/pp"
)

// Архив с фиксированным содержимым
type fakeDb struct {
	store.DbStore
	last    *model.TelemetryEvent
	history []model.TemperatureMetric
	changes []store.ThresholdsLog

	days    uint
	offset  uint
	compact bool
}

func (m *fakeDb) IsNotFound(err error) bool {
	return errors.IsNotFound(err)
}

func (m *fakeDb) LastTelemetry() (*model.TelemetryEvent, error) {
	if m.last == nil {
		return nil, errors.NotFoundf("запись")
	}
	return m.last, nil
}

func (m *fakeDb) TelemetryLog(days uint, offset uint, compact bool) ([]model.TemperatureMetric, error) {
	m.days, m.offset, m.compact = days, offset, compact
	return m.history, nil
}

func (m *fakeDb) ThresholdsLog(days uint) ([]store.ThresholdsLog, error) {
	m.days = days
	return m.changes, nil
}

func int16p(v int16) *int16 { return &v }

func testEvent() model.TelemetryEvent {
	reading := model.Reading{Quarters: -41, ReferenceSixteenths: 404, Reference: 25, OpenCircuit: true}
	return model.TelemetryEvent{
		CreateAt:  time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
		Telemetry: model.NewTelemetry(1710072000, reading, model.NewThresholds()),
		Reading:   reading,
		Level:     model.LevelFault,
	}
}

func newTestServer(t *testing.T, db store.DbStore) (*handler.Server, *Resolver) {
	resolver, err := NewResolver(threshold.NewThreshold(), db, &ConfigResolver{})
	if err != nil {
		t.Fatal(err)
	}
	schema, err := NewExecutableSchema(resolver)
	if err != nil {
		t.Fatal(err)
	}
	srv := handler.New(schema)
	srv.AddTransport(transport.POST{})
	return srv, resolver
}

func post(t *testing.T, srv *handler.Server, body string) string {
	req := httptest.NewRequest(http.MethodPost, "/api/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("код %d: %s", rec.Code, rec.Body.String())
	}
	return strings.TrimSpace(rec.Body.String())
}

func TestNewResolver(t *testing.T) {
	if _, err := NewResolver(threshold.NewThreshold(), nil, nil); err == nil {
		t.Error("ожидалась ошибка без конфигурации")
	}
	if _, err := NewResolver(nil, nil, &ConfigResolver{}); err == nil {
		t.Error("ожидалась ошибка без хранилища порогов")
	}
	if _, err := NewExecutableSchema(nil); err == nil {
		t.Error("ожидалась ошибка без резолверов")
	}
}

func TestQuery(t *testing.T) {
	event := testEvent()
	db := &fakeDb{
		last: &event,
		history: []model.TemperatureMetric{
			{Date: time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), TemperatureMin: -41, TemperatureMax: 120, Level: model.LevelHigh},
		},
		changes: []store.ThresholdsLog{
			{
				CreatedAt: time.Date(2024, 3, 9, 8, 30, 0, 0, time.UTC),
				Update:    model.ThresholdsUpdate{MaxNormal: int16p(50)},
				Result:    model.NewThresholds().Merge(model.ThresholdsUpdate{MaxNormal: int16p(50)}),
			},
		},
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "статус из архива",
			body: `{"query":"{ status { stale last { temperature reference openCircuit level } } }"}`,
			want: `{"data":{"status":{"stale":true,"last":{"temperature":-10.25,"reference":25.25,"openCircuit":true,"level":"fault"}}}}`,
		},
		{
			name: "история с аргументами",
			body: `{"query":"{ history(days: 7, offsetDays: 1, compact: true) { date temperatureMin temperatureMax level } }"}`,
			want: `{"data":{"history":[{"date":"2024.03.09 00:00:00","temperatureMin":-10.25,"temperatureMax":30,"level":"high"}]}}`,
		},
		{
			name: "журнал порогов с псевдонимом",
			body: `{"query":"{ log: thresholdsLog(days: 3) { update { tresholdMin tresholdMax } result { tresholdMax } } }"}`,
			want: `{"data":{"log":[{"update":{"tresholdMin":null,"tresholdMax":50},"result":{"tresholdMax":50}}]}}`,
		},
		{
			name: "переменные и фрагмент",
			body: `{"query":"query($d: Int!) { history(days: $d) { ...m } } fragment m on TemperatureMetric { __typename fault }","variables":{"d":2}}`,
			want: `{"data":{"history":[{"__typename":"TemperatureMetric","fault":false}]}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, db)
			if got := post(t, srv, tt.body); got != tt.want {
				t.Errorf("ответ\n%s\nожидался\n%s\nархив %s", got, tt.want, pp.Sprint(db))
			}
		})
	}
}

func TestQueryHistoryArgs(t *testing.T) {
	db := &fakeDb{}
	srv, _ := newTestServer(t, db)
	post(t, srv, `{"query":"{ history(days: 7, offsetDays: 1, compact: true) { date } }"}`)
	if db.days != 7 || db.offset != 1 || !db.compact {
		t.Errorf("запрос к архиву %s", pp.Sprint(db))
	}
	post(t, srv, `{"query":"{ history { date } }"}`)
	if db.days != 1 || db.offset != 0 || db.compact {
		t.Errorf("значения по умолчанию %s", pp.Sprint(db))
	}
}

func TestQueryErrors(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	got := post(t, srv, `{"query":"{ thresholds { tresholdMin } history { date } }"}`)
	if !strings.Contains(got, `"thresholds":{"tresholdMin":32767}`) || !strings.Contains(got, `"history":null`) ||
		!strings.Contains(got, "архив отключен") {
		t.Errorf("ответ без архива %s", got)
	}

	// Запрос, не прошедший проверку по схеме, до резолверов не доходит
	req := httptest.NewRequest(http.MethodPost, "/api/graphql", strings.NewReader(`{"query":"{ unknown }"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code == http.StatusOK || !strings.Contains(rec.Body.String(), `"errors"`) {
		t.Errorf("ожидалась ошибка проверки запроса: %d %s", rec.Code, rec.Body.String())
	}
}

func TestSubscriptionTelemetryChanged(t *testing.T) {
	_, resolver := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := resolver.Subscription().TelemetryChanged(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if resolver.Subscribers() != 1 {
		t.Fatalf("подписчиков %d, want 1", resolver.Subscribers())
	}

	resolver.TelemetryChanged(testEvent())
	select {
	case got := <-ch:
		if got.Temperature != -10.25 || !got.OpenCircuit || got.Level != "fault" || got.Thresholds.TresholdMax != int(model.Unset) {
			t.Errorf("запись подписки %s", pp.Sprint(got))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("запись не получена")
	}

	// Переполненный канал не блокирует рассылку
	for i := 0; i < subscribeCapacity+5; i++ {
		resolver.TelemetryChanged(testEvent())
	}
	if len(ch) != subscribeCapacity {
		t.Errorf("в канале %d записей, want %d", len(ch), subscribeCapacity)
	}

	cancel()
	deadline := time.Now().Add(5 * time.Second)
	for resolver.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("подписчик не удалён после отмены контекста")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
