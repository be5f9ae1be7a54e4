package config

import (
	"log"
	"os"
	"sync"

	"github.com/kirsrus/termopad/agent/pkg/validator"

	"github.com/jinzhu/configor"
	"github.com/juju/errors"
)

var (
	config Config
	once   sync.Once
)

const (
	FileName  = "config.yaml"
	EnvPrefix = "THERMO"
)

// Get единажды читает и возвращает конфигурацию
func Get() *Config {
	return GetWithPath(FileName)
}

// GetWithPath единожды читает и возвращает конфигурацию
func GetWithPath(filepath string) *Config {
	once.Do(func() {
		if _, err := os.Stat(filepath); err != nil {
			log.Fatalf("файл конфигурации недоступен: %s", err)
		}
		cfg, err := Load(filepath)
		if err != nil {
			log.Fatalf("ошибка чтения файла конфигурации %s: %s", filepath, err)
		}
		config = *cfg
	})
	return &config
}

// Load читает конфигурацию из файлов (и переменных окружения с префиксом THERMO_) и проверяет её
func Load(files ...string) (*Config, error) {
	var cfg Config
	err := configor.New(&configor.Config{ENVPrefix: EnvPrefix}).Load(&cfg, files...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err = validator.Get().ValidateWithConform(&cfg); err != nil {
		return nil, errors.Annotate(err, "некорректная конфигурация")
	}
	return &cfg, nil
}
