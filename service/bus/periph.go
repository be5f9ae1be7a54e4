package bus

import (
	"io/ioutil"
	"sync"

	"github.com/kirsrus/termopad/agent/service"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	// Частота шины по умолчанию (MAX31855 допускает до 5 МГц)
	frequency = 1 * physic.MegaHertz
	// Вывод выбора кристалла по умолчанию
	chipSelect = "GPIO8"
)

// Periph шина SPI через periph.io. Выбор кристалла управляется отдельным выводом GPIO,
// чтобы две 16-битные передачи шли в рамках одного выбора. Инициируется через NewPeriph
type Periph struct {
	log *logrus.Entry

	mu   sync.Mutex
	port spi.PortCloser
	conn spi.Conn
	cs   gpio.PinIO
}

// ConfigPeriph конфигурация Periph
type ConfigPeriph struct {
	Log *logrus.Logger
	// Имя порта SPI в реестре periph. Пусто - первый доступный
	Port string
	// Частота шины в герцах
	Frequency uint
	// Имя вывода GPIO выбора кристалла
	ChipSelect string `conform:"trim"`
}

// NewPeriph конструктор Periph. Датчик после создания не выбран
func NewPeriph(config *ConfigPeriph) (service.BusSvc, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	freq := frequency
	if config.Frequency != 0 {
		freq = physic.Frequency(config.Frequency) * physic.Hertz
	}
	csName := chipSelect
	if config.ChipSelect != "" {
		csName = config.ChipSelect
	}

	if _, err := host.Init(); err != nil {
		return nil, errors.Annotate(err, "ошибка инициализации periph")
	}
	cs := gpioreg.ByName(csName)
	if cs == nil {
		return nil, errors.Errorf("вывод выбора кристалла %s не найден", csName)
	}
	if err := cs.Out(gpio.High); err != nil {
		return nil, errors.Annotatef(err, "ошибка установки вывода %s", csName)
	}
	port, err := spireg.Open(config.Port)
	if err != nil {
		return nil, errors.Annotatef(err, "ошибка открытия порта SPI %q", config.Port)
	}
	conn, err := port.Connect(freq, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, errors.Annotate(err, "ошибка настройки порта SPI")
	}

	bus := &Periph{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "bus",
			"scope":  "service",
			"port":   port.String(),
			"cs":     csName,
		}),
		port: port,
		conn: conn,
		cs:   cs,
	}
	bus.log.Infof("шина SPI открыта, частота %s", freq)
	return bus, nil
}

// Transfer передаёт слово старшим байтом вперёд и возвращает принятое слово
func (m *Periph) Transfer(word uint16) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := []byte{byte(word >> 8), byte(word)}
	r := make([]byte, 2)
	if err := m.conn.Tx(w, r); err != nil {
		return 0, errors.Annotate(err, "ошибка обмена по SPI")
	}
	return uint16(r[0])<<8 | uint16(r[1]), nil
}

// Select выбор кристалла (активный низкий уровень)
func (m *Periph) Select(active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	level := gpio.High
	if active {
		level = gpio.Low
	}
	if err := m.cs.Out(level); err != nil {
		return errors.Annotate(err, "ошибка управления выбором кристалла")
	}
	return nil
}

// Close снимает выбор кристалла и закрывает порт
func (m *Periph) Close() error {
	selErr := m.Select(false)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.port.Close(); err != nil {
		return errors.Trace(err)
	}
	m.log.Info("шина SPI закрыта")
	return errors.Trace(selErr)
}
