// Package metric метрики Prometheus агента термопары.
package metric

import (
	"github.com/kirsrus/termopad/agent/model"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "thermo"

// Metrics набор метрик. Инициализируется через New
type Metrics struct {
	Samples        prometheus.Counter
	BusErrors      prometheus.Counter
	Published      prometheus.Counter
	PublishErrors  prometheus.Counter
	EncodeErrors   prometheus.Counter
	ConfigApplied  prometheus.Counter
	ConfigRejected prometheus.Counter
	Faults         *prometheus.CounterVec
	Temperature    prometheus.Gauge
	Reference      prometheus.Gauge
	Level          prometheus.Gauge
	Thresholds     *prometheus.GaugeVec
	SampleLatency  prometheus.Histogram
}

// New создаёт метрики и регистрирует их в reg. При reg == nil метрики не регистрируются
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Количество выполненных периодов опроса датчика.",
		}),
		BusErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_errors_total",
			Help:      "Периоды опроса с ошибкой обмена по шине.",
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_total",
			Help:      "Записи телеметрии, переданные в транспорт.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Записи телеметрии, отклонённые транспортом.",
		}),
		EncodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encode_errors_total",
			Help:      "Записи телеметрии, которые не удалось закодировать.",
		}),
		ConfigApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_applied_total",
			Help:      "Применённые обновления порогов.",
		}),
		ConfigRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_rejected_total",
			Help:      "Отброшенные входящие сообщения порогов.",
		}),
		Faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Отсчёты с установленным флагом неисправности, по флагам.",
		}, []string{"flag"}),
		Temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Последняя температура термопары.",
		}),
		Reference: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reference_celsius",
			Help:      "Последняя температура опорного спая.",
		}),
		Level: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alarm_level",
			Help:      "Уровень тревоги последнего отсчёта: 0 норма, 1 вне нормы, 2 критично, 3 неисправность датчика.",
		}),
		Thresholds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threshold_celsius",
			Help:      "Пороги тревоги, 32767 - порог не задан.",
		}, []string{"threshold"}),
		SampleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sample_duration_seconds",
			Help:      "Время от выбора кристалла до передачи записи в транспорт.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Samples, m.BusErrors, m.Published, m.PublishErrors, m.EncodeErrors,
			m.ConfigApplied, m.ConfigRejected, m.Faults, m.Temperature, m.Reference,
			m.Level, m.Thresholds, m.SampleLatency,
		)
	}
	return m
}

// ObserveReading обновляет метрики по очередному отсчёту
func (m *Metrics) ObserveReading(reading model.Reading, level model.Level, preciseReference bool) {
	m.Samples.Inc()
	m.Level.Set(float64(level.Severity()))
	if reading.BusError {
		// Отсчёт при ошибке шины не содержит температуры
		return
	}
	m.Temperature.Set(reading.Temperature().Float())
	m.Reference.Set(reading.ReferenceCelsius(preciseReference).InexactFloat64())
	for flag, set := range map[string]bool{
		"fault":        reading.Fault,
		"open_circuit": reading.OpenCircuit,
		"short_gnd":    reading.ShortGND,
		"short_vcc":    reading.ShortVCC,
	} {
		if set {
			m.Faults.WithLabelValues(flag).Inc()
		}
	}
}

// SetThresholds выставляет значения порогов
func (m *Metrics) SetThresholds(t model.Thresholds) {
	m.Thresholds.WithLabelValues("min_normal").Set(float64(t.MinNormal))
	m.Thresholds.WithLabelValues("max_normal").Set(float64(t.MaxNormal))
	m.Thresholds.WithLabelValues("min_critical").Set(float64(t.MinCritical))
	m.Thresholds.WithLabelValues("max_critical").Set(float64(t.MaxCritical))
}
