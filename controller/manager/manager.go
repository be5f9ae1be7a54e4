package manager

import (
	"context"
	"io/ioutil"
	"time"

	"github.com/kirsrus/termopad/agent/controller"
	"github.com/kirsrus/termopad/agent/model"
	"github.com/kirsrus/termopad/agent/service"
	"github.com/kirsrus/termopad/agent/store"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	cleanBaseDays     = 30
	cleanBaseInterval = time.Minute * 30
)

// ConfigManager конфигурация Manager
type ConfigManager struct {
	Log *logrus.Logger

	// Отмена общего контекста при ошибке любого из модулей
	Cancel context.CancelFunc

	SamplerCtl  controller.SamplerCtl
	ListenerCtl controller.ListenerCtl

	// Необязательные потребители телеметрии
	WebSvc  service.WebSvc
	DbStore store.DbStore

	// Записи архива старше CleanBaseDays дней удаляются каждые CleanBaseInterval
	CleanBaseDays     int
	CleanBaseInterval time.Duration
}

// Manager основной менеджер работы со всеми контроллерами и сервисами. Инициируется через NewManager
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *logrus.Entry

	samplerCtl  controller.SamplerCtl
	listenerCtl controller.ListenerCtl

	webSvc  service.WebSvc
	dbStore store.DbStore

	cleanBaseDays     int
	cleanBaseInterval time.Duration
}

// NewManager конструктор Manager
func NewManager(ctx context.Context, config *ConfigManager) (*Manager, error) {
	if config == nil {
		return nil, errors.New("не передана конфигурация")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if config.SamplerCtl == nil {
		return nil, errors.New("не передан контроллер опроса датчика")
	}
	if config.ListenerCtl == nil {
		return nil, errors.New("не передан контроллер приёма конфигурации")
	}

	if config.Cancel == nil {
		config.Cancel = func() {}
	}

	manager := Manager{
		ctx:    ctx,
		cancel: config.Cancel,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "manager",
			"scope":  "controller",
		}),
		samplerCtl:  config.SamplerCtl,
		listenerCtl: config.ListenerCtl,

		webSvc:  config.WebSvc,
		dbStore: config.DbStore,

		cleanBaseDays:     cleanBaseDays,
		cleanBaseInterval: cleanBaseInterval,
	}
	if config.CleanBaseDays != 0 {
		manager.cleanBaseDays = config.CleanBaseDays
	}
	if config.CleanBaseInterval != 0 {
		manager.cleanBaseInterval = config.CleanBaseInterval
	}

	manager.configToLog()

	return &manager, nil
}

// Вывести значения конфигурации в лог
func (m Manager) configToLog() {
	m.log.Debugf("web: %t", m.webSvc != nil)
	m.log.Debugf("db: %t", m.dbStore != nil)
	m.log.Debugf("cleanBaseDays: %d", m.cleanBaseDays)
	m.log.Debugf("cleanBaseInterval: %s", m.cleanBaseInterval)
}

// Serve запуск опроса датчика, приёма конфигурации и потребителей телеметрии. Ошибка любого
// из них отменяет общий контекст. Возвращает управление после остановки всех модулей
func (m Manager) Serve() error {
	g := new(errgroup.Group)
	run := func(name string, fn func() error) {
		g.Go(func() error {
			err := fn()
			if err != nil {
				m.log.Errorf("%s: %v", name, err)
				m.cancel()
			}
			return errors.Annotate(err, name)
		})
	}

	// Опрос датчика и приём конфигурации работают независимо, общее у них только хранилище порогов
	run("опрос датчика", m.samplerCtl.Serve)
	run("приём конфигурации", m.listenerCtl.Serve)

	// Раздача записей телеметрии внутренним потребителям
	run("раздача телеметрии", func() error {
		for {
			event, err := m.samplerCtl.EmmitTelemetry()
			if err != nil {
				if m.ctx.Err() != nil {
					return nil
				}
				return errors.Trace(err)
			}
			m.telemetryInWorker(*event)
		}
	})

	if m.webSvc != nil {
		run("WEB-сервис", func() error {
			return m.webSvc.Serve(m.ctx)
		})
	}

	// Хоускипер для очистки базы данных от старых записей
	if m.dbStore != nil {
		run("очистка архива", func() error {
			ticker := time.NewTicker(m.cleanBaseInterval)
			defer ticker.Stop()
			for {
				if err := m.dbStore.Clean(m.cleanBaseDays); err != nil {
					m.log.Warnf("ошибка очистки архива: %v", err)
				}
				select {
				case <-m.ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})
	}

	err := g.Wait()
	m.log.Info("все модули остановлены")
	return errors.Trace(err)
}

// Обработчик записи телеметрии. Ошибки архива не прерывают работу
func (m Manager) telemetryInWorker(event model.TelemetryEvent) {
	if m.webSvc != nil {
		m.webSvc.TelemetryChanged(event)
	}
	if m.dbStore != nil {
		if err := m.dbStore.SetTelemetry(event); err != nil {
			m.log.Error(err)
		}
	}
}
