package bus

import (
	"io/ioutil"
	"math"
	"sync"

	"github.com/kirsrus/termopad/agent/model"
	"github.com/kirsrus/termopad/agent/pkg/max31855"
	"github.com/kirsrus/termopad/agent/service"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

// Значение линии MISO при невыбранном датчике
const floating = 0xFFFF

// Simulator имитатор MAX31855 на шине. Температура колеблется пилой вокруг базового
// значения. Инициируется через NewSimulator
type Simulator struct {
	log *logrus.Entry

	mu       sync.Mutex
	selected bool
	word     int
	sample   model.RawSample
	count    uint

	base       float64
	amplitude  float64
	step       float64
	offset     float64
	reference  float64
	faultEvery uint
}

// ConfigSimulator конфигурация Simulator
type ConfigSimulator struct {
	Log         *logrus.Logger
	Temperature float64
	Amplitude   float64
	Step        float64
	Reference   float64
	// Каждый N-й отсчёт с обрывом термопары (0 - никогда)
	FaultEvery uint
}

// NewSimulator конструктор Simulator
func NewSimulator(config *ConfigSimulator) (service.BusSvc, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if config.Amplitude < 0 {
		return nil, errors.Errorf("отрицательная амплитуда %v", config.Amplitude)
	}
	sim := &Simulator{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "bus",
			"scope":  "simulator",
		}),
		base:       config.Temperature,
		amplitude:  config.Amplitude,
		step:       config.Step,
		reference:  config.Reference,
		faultEvery: config.FaultEvery,
	}
	sim.log.Infof("имитатор датчика: %.2f±%.2f°C", sim.base, sim.amplitude)
	return sim, nil
}

// Select при выборе кристалла фиксирует очередной отсчёт
func (m *Simulator) Select(active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if active && !m.selected {
		m.sample = m.next()
		m.word = 0
	}
	m.selected = active
	return nil
}

// Transfer отдаёт старшее, затем младшее слово отсчёта
func (m *Simulator) Transfer(uint16) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.selected {
		return floating, errors.New("датчик не выбран")
	}
	m.word++
	switch m.word {
	case 1:
		return m.sample.High, nil
	case 2:
		return m.sample.Low, nil
	default:
		// После 32 бит MAX31855 выдаёт нули
		return 0, nil
	}
}

// Close снимает выбор кристалла
func (m *Simulator) Close() error {
	return m.Select(false)
}

func (m *Simulator) next() model.RawSample {
	m.count++
	temperature := m.base + m.offset
	if m.amplitude > 0 {
		m.offset += m.step
		if math.Abs(m.offset) > m.amplitude {
			m.step = -m.step
			m.offset += 2 * m.step
		}
	}

	var faults max31855.Faults
	if m.faultEvery != 0 && m.count%m.faultEvery == 0 {
		faults = max31855.Faults{Fault: true, OpenCircuit: true}
	}
	quarters := int16(math.Round(clamp(temperature, -2048, 2047.75) * 4))
	reference := int16(math.Round(clamp(m.reference, -128, 127.9375) * 16))
	return max31855.Encode(quarters, faults, reference)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
