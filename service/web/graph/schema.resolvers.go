package graph

import (
	"context"

	modelGraphQl "github.com/kirsrus/termopad/agent/service/web/graph/model"

	"github.com/google/uuid"
	"github.com/juju/errors"
)

func (r *queryResolver) Status(ctx context.Context) (*modelGraphQl.Status, error) {
	_ = ctx
	status := modelGraphQl.Status{
		State:      r.state().String(),
		Stale:      true,
		Thresholds: newThresholds(r.thresholds.Read()),
	}
	if event, found := r.last(); found {
		status.Last = newTelemetry(*event)
		status.Stale = false
		return &status, nil
	}
	if r.db == nil {
		return &status, nil
	}
	event, err := r.db.LastTelemetry()
	switch {
	case err == nil:
		status.Last = newTelemetry(*event)
	case !r.db.IsNotFound(err):
		return nil, errors.Trace(err)
	}
	return &status, nil
}

func (r *queryResolver) Thresholds(ctx context.Context) (*modelGraphQl.Thresholds, error) {
	_ = ctx
	return newThresholds(r.thresholds.Read()), nil
}

func (r *queryResolver) History(ctx context.Context, days int, offsetDays int, compact bool) ([]*modelGraphQl.TemperatureMetric, error) {
	_ = ctx
	if r.db == nil {
		return nil, errors.New("архив отключен")
	}
	if days <= 0 || offsetDays < 0 {
		return nil, errors.Errorf("некорректный период: days=%d, offsetDays=%d", days, offsetDays)
	}
	rows, err := r.db.TelemetryLog(uint(days), uint(offsetDays), compact)
	if err != nil {
		return nil, errors.Trace(err)
	}

	// Формирование результата
	result := make([]*modelGraphQl.TemperatureMetric, 0, len(rows))
	for _, v := range rows {
		result = append(result, &modelGraphQl.TemperatureMetric{
			Date:           v.Date.Format(dateFormat),
			Temperature:    v.Temperature.Float(),
			TemperatureMax: v.TemperatureMax.Float(),
			TemperatureMin: v.TemperatureMin.Float(),
			Level:          string(v.Level),
			Fault:          v.Fault,
		})
	}
	return result, nil
}

func (r *queryResolver) ThresholdsLog(ctx context.Context, days int) ([]*modelGraphQl.ThresholdsChange, error) {
	_ = ctx
	if r.db == nil {
		return nil, errors.New("архив отключен")
	}
	if days <= 0 {
		return nil, errors.Errorf("некорректное количество дней days=%d", days)
	}
	rows, err := r.db.ThresholdsLog(uint(days))
	if err != nil {
		return nil, errors.Trace(err)
	}

	result := make([]*modelGraphQl.ThresholdsChange, 0, len(rows))
	for _, v := range rows {
		result = append(result, &modelGraphQl.ThresholdsChange{
			CreatedAt: v.CreatedAt.Format(dateFormat),
			Update: &modelGraphQl.ThresholdsUpdate{
				TresholdMin:         intp(v.Update.MinNormal),
				TresholdMax:         intp(v.Update.MaxNormal),
				CriticalTresholdMin: intp(v.Update.MinCritical),
				CriticalTresholdMax: intp(v.Update.MaxCritical),
			},
			Result: newThresholds(v.Result),
		})
	}
	return result, nil
}

func (r *subscriptionResolver) TelemetryChanged(ctx context.Context) (<-chan *modelGraphQl.Telemetry, error) {
	// Подписка нового клиента
	id := uuid.New().String()
	ch := make(chan *modelGraphQl.Telemetry, subscribeCapacity)
	r.telemetrySubscribePool.Store(id, ch)
	r.log.Debugf("добавлен канал %s в подписку TelemetryChanged", id)
	go func() {
		<-ctx.Done()
		r.telemetrySubscribePool.Delete(id)
		r.log.Debugf("удалён канал %s из подписки TelemetryChanged", id)
	}()

	return ch, nil
}

// Query резолвер запросов
func (r *Resolver) Query() QueryResolver { return &queryResolver{r} }

// Subscription резолвер подписок
func (r *Resolver) Subscription() SubscriptionResolver { return &subscriptionResolver{r} }

type queryResolver struct{ *Resolver }
type subscriptionResolver struct{ *Resolver }
