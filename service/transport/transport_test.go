package transport

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSubscription(t *testing.T) {
	log := logrus.NewEntry(logrus.New())

	t.Run("доставка копии", func(t *testing.T) {
		sub := newSubscription("a", log)
		payload := []byte("abc")
		sub.deliver(payload)
		payload[0] = 'x'
		if got := <-sub.ch; string(got) != "abc" {
			t.Errorf("получено %s", got)
		}
	})

	t.Run("переполнение не блокирует", func(t *testing.T) {
		sub := newSubscription("a", log)
		for i := 0; i < subscriptionCapacity+5; i++ {
			sub.deliver([]byte{byte(i)})
		}
		if len(sub.ch) != subscriptionCapacity {
			t.Errorf("в очереди %d сообщений, ожидалось %d", len(sub.ch), subscriptionCapacity)
		}
	})

	t.Run("доставка после закрытия", func(t *testing.T) {
		sub := newSubscription("a", log)
		sub.close()
		sub.close()
		sub.deliver([]byte("late"))
		if _, ok := <-sub.ch; ok {
			t.Error("канал должен быть закрыт и пуст")
		}
	})
}

func TestNewMqtt(t *testing.T) {
	tests := []struct {
		name   string
		config *ConfigMqtt
	}{
		{name: "без конфигурации", config: nil},
		{name: "без брокера", config: &ConfigMqtt{}},
		{name: "неизвестная схема", config: &ConfigMqtt{Broker: "http://localhost:1883"}},
		{name: "некорректный QoS", config: &ConfigMqtt{Broker: "tcp://localhost:1883", Qos: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMqtt(tt.config); err == nil {
				t.Error("NewMqtt() ожидалась ошибка")
			}
		})
	}
}

func TestNewKafka(t *testing.T) {
	tests := []struct {
		name    string
		config  *ConfigKafka
		wantErr bool
	}{
		{name: "без конфигурации", config: nil, wantErr: true},
		{name: "без брокеров", config: &ConfigKafka{GroupID: "thermo"}, wantErr: true},
		{name: "некорректный адрес", config: &ConfigKafka{Brokers: []string{"localhost"}, GroupID: "thermo"}, wantErr: true},
		{name: "без группы", config: &ConfigKafka{Brokers: []string{"localhost:9092"}, GroupID: " "}, wantErr: true},
		{name: "корректный", config: &ConfigKafka{Brokers: []string{"localhost:9092"}, GroupID: "thermo"}, wantErr: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewKafka(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewKafka() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != nil {
				if err = got.Close(); err != nil {
					t.Errorf("Close() error = %v", err)
				}
			}
		})
	}
}
