package config

import "time"

type (

	// Config конфигурация программы
	Config struct {

		// Описание логирования
		Log struct {

			// Путь к файлу лога
			Path string

			// Имя файла логирования
			Filename string `required:"true" default:"thermo.log"`

			// Уровень логирования
			Level string `required:"true" default:"info"`

			// Выводить лог только на консоль
			Console bool `default:"false"`
		}

		// Описание датчика и шины SPI
		Sensor struct {

			// Драйвер шины: periph - реальная шина SPI, sim - имитатор датчика
			Driver string `default:"sim" validate:"oneof=periph sim"`

			// Имя порта SPI в реестре periph (пусто - первый доступный)
			SpiPort string

			// Частота шины в герцах
			Frequency uint `default:"1000000" validate:"min=1,max=5000000"`

			// Имя вывода GPIO для выбора кристалла
			ChipSelect string `default:"GPIO8"`

			// Задержка после выбора кристалла до чтения (в миллисекундах)
			SelectDelay uint `default:"1" validate:"min=1"`

			// Задержка перед снятием выбора кристалла (в миллисекундах)
			SettleDelay uint `default:"1"`

			// Период опроса и публикации (в секундах)
			Period uint `default:"5" validate:"min=1"`

			// Точность температуры опорного спая: degree - целые градусы, sixteenth - 1/16 градуса
			ReferencePrecision string `default:"degree" validate:"oneof=degree sixteenth"`

			// Профиль имитатора датчика
			Simulator struct {

				// Базовая температура термопары
				Temperature float64 `default:"23.75"`

				// Амплитуда колебаний температуры
				Amplitude float64 `default:"2"`

				// Шаг изменения температуры за период
				Step float64 `default:"0.25"`

				// Температура опорного спая
				Reference float64 `default:"25"`

				// Каждый N-й отсчёт с обрывом термопары (0 - никогда)
				FaultEvery uint `default:"0"`
			}
		}

		// Описание транспорта (брокера сообщений)
		Transport struct {

			// Драйвер транспорта: mqtt, kafka, websocket
			Driver string `default:"mqtt" validate:"oneof=mqtt kafka websocket"`

			// Адрес брокера MQTT, например tcp://127.0.0.1:1883
			Broker string `default:"tcp://localhost:1883" conform:"trim" validate:"omitempty,broker"`

			// Идентификатор клиента. Если пустой - генерируется
			ClientID string `conform:"trim"`

			Username string
			Password string

			// Канал публикации телеметрии
			TelemetryTopic string `default:"thermo/telemetry" conform:"trim" validate:"required"`

			// Канал получения обновлений порогов
			UpdateTopic string `default:"thermo/thresholds" conform:"trim" validate:"required"`

			// Уровень QoS для MQTT
			Qos uint `default:"0" validate:"max=2"`

			// Максимальный размер входящего сообщения в байтах
			MaxPayload uint `default:"256" validate:"min=1"`

			// Таймаут подключения к брокеру (в секундах)
			ConnectTimeout uint `default:"10"`

			// Пауза перед повторной подпиской на канал порогов (в секундах)
			ResubscribeTimeout uint `default:"5" validate:"min=1"`

			// Подключение к Kafka
			Kafka struct {
				Brokers []string
				GroupID string `default:"thermo-agent"`
			}

			// Подключение к WebSocket шлюзу, например ws://127.0.0.1:8000/bus
			Websocket struct {
				URL string `conform:"trim" validate:"omitempty,websocket"`
			}
		}

		// Описываем подключение к базе данных архива
		Db struct {

			// Не вести архив телеметрии
			Disabled bool `default:"false"`

			// Имя файла базы данных
			Filename string `required:"true" default:"thermo.sqlite"`

			// Колличество дней хранения ахрива телеметрии
			ArchiveDays int `default:"30"`

			// Период очистки архива до ArchiveDays в минутах
			CleanArchiveInterval int `default:"30"`
		}

		// Обслуживание WEB-сервера
		Http struct {

			// Не запускать WEB-сервер
			Disabled bool `default:"false"`

			// Порт WEB-сервера
			Port uint `required:"true" default:"8080"`
		}
	}
)

// SensorPeriod период опроса датчика
func (m *Config) SensorPeriod() time.Duration {
	return time.Duration(m.Sensor.Period) * time.Second
}

// SelectDelay задержка после выбора кристалла
func (m *Config) SelectDelay() time.Duration {
	return time.Duration(m.Sensor.SelectDelay) * time.Millisecond
}

// SettleDelay задержка перед снятием выбора кристалла
func (m *Config) SettleDelay() time.Duration {
	return time.Duration(m.Sensor.SettleDelay) * time.Millisecond
}

// ConnectTimeout таймаут подключения к брокеру
func (m *Config) ConnectTimeout() time.Duration {
	return time.Duration(m.Transport.ConnectTimeout) * time.Second
}

// ResubscribeTimeout пауза перед повторной подпиской
func (m *Config) ResubscribeTimeout() time.Duration {
	return time.Duration(m.Transport.ResubscribeTimeout) * time.Second
}
