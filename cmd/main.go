package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirsrus/termopad/agent/controller/listener"
	"github.com/kirsrus/termopad/agent/controller/manager"
	"github.com/kirsrus/termopad/agent/controller/sampler"
	"github.com/kirsrus/termopad/agent/pkg/config"
	"github.com/kirsrus/termopad/agent/pkg/logger"
	"github.com/kirsrus/termopad/agent/pkg/metric"
	"github.com/kirsrus/termopad/agent/service"
	busSvcMod "github.com/kirsrus/termopad/agent/service/bus"
	transportSvcMod "github.com/kirsrus/termopad/agent/service/transport"
	webSvcMod "github.com/kirsrus/termopad/agent/service/web"
	"github.com/kirsrus/termopad/agent/store"
	dbStoreMod "github.com/kirsrus/termopad/agent/store/db"
	"github.com/kirsrus/termopad/agent/store/threshold"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

var (
	cfg *config.Config
	log *logrus.Logger
)

func init() {
	configFile := flag.String("config", config.FileName, "путь к файлу конфигурации")
	flag.Parse()

	cfg = config.GetWithPath(*configFile)
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.WarnLevel
	}
	log = logger.GetWithConfig(logger.Config{
		Path:    cfg.Log.Path,
		File:    cfg.Log.Filename,
		Level:   level,
		Console: cfg.Log.Console,
	})
}

func main() {
	err := run()
	if err != nil {
		fmt.Printf("ОШИБКА: в процессе работы произошла ошибка: %v\n", err)
		fmt.Printf("Для подробностей смотри лог: %s/%s\n", cfg.Log.Path, cfg.Log.Filename)
		log.Fatal(errors.ErrorStack(err))
	}
}

func run() error {
	// Отлавливаем сигнал завершения работы программы
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// region Метрики

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := metric.New(registry)

	// endregion
	// region Шина датчика

	bus, err := newBus()
	if err != nil {
		return errors.Annotate(err, "ошибка инициализации шины")
	}
	defer func() {
		if err := bus.Close(); err != nil {
			log.Warnf("ошибка закрытия шины: %v", err)
		}
	}()

	// endregion
	// region Транспорт

	transport, err := newTransport(ctx)
	if err != nil {
		return errors.Annotate(err, "ошибка инициализации транспорта")
	}
	defer func() {
		if err := transport.Close(); err != nil {
			log.Warnf("ошибка закрытия транспорта: %v", err)
		}
	}()

	// endregion
	// region Настройка БД

	var dbStore store.DbStore
	if !cfg.Db.Disabled {
		dbStore, err = dbStoreMod.NewDb(ctx, &dbStoreMod.ConfigDb{
			Log:    log,
			DbFile: cfg.Db.Filename,
		})
		if err != nil {
			return errors.Trace(err)
		}
		defer func() { _ = dbStore.Close() }()
	}

	// endregion
	// region Контроллеры опроса датчика и приёма конфигурации

	thresholds := threshold.NewThreshold()
	metrics.SetThresholds(thresholds.Read())

	samplerCtl, err := sampler.NewSampler(ctx, bus, transport, thresholds, &sampler.ConfigSampler{
		Log:              log,
		Metrics:          metrics,
		Topic:            cfg.Transport.TelemetryTopic,
		Period:           cfg.SensorPeriod(),
		SelectDelay:      cfg.SelectDelay(),
		SettleDelay:      cfg.SettleDelay(),
		PreciseReference: cfg.Sensor.ReferencePrecision == "sixteenth",
	})
	if err != nil {
		return errors.Trace(err)
	}

	listenerCtl, err := listener.NewListener(ctx, transport, thresholds, &listener.ConfigListener{
		Log:        log,
		Metrics:    metrics,
		DbStore:    dbStore,
		Topic:      cfg.Transport.UpdateTopic,
		MaxPayload: int(cfg.Transport.MaxPayload),

		ResubscribeTimeout: cfg.ResubscribeTimeout(),
	})
	if err != nil {
		return errors.Trace(err)
	}

	// endregion
	// region Контроллер WEB

	var webSvc service.WebSvc
	if !cfg.Http.Disabled {
		webSvc, err = webSvcMod.NewWeb(thresholds, dbStore, &webSvcMod.ConfigWeb{
			Log:            log,
			WebPort:        cfg.Http.Port,
			LastExpiration: 2 * cfg.SensorPeriod(),
			Gatherer:       registry,
			State:          samplerCtl.State,
		})
		if err != nil {
			return errors.Trace(err)
		}
	}

	// endregion
	// region Менеджер управления всеми

	managerCtl, err := manager.NewManager(ctx, &manager.ConfigManager{
		Log:               log,
		Cancel:            cancel,
		SamplerCtl:        samplerCtl,
		ListenerCtl:       listenerCtl,
		WebSvc:            webSvc,
		DbStore:           dbStore,
		CleanBaseDays:     cfg.Db.ArchiveDays,
		CleanBaseInterval: time.Minute * time.Duration(cfg.Db.CleanArchiveInterval),
	})
	if err != nil {
		return errors.Trace(err)
	}

	// endregion

	err = managerCtl.Serve()
	if ctx.Err() != nil && err == nil {
		log.Info("получена команда на завершение работы программы")
	}
	return errors.Trace(err)
}

// Шина по драйверу из конфигурации
func newBus() (service.BusSvc, error) {
	switch cfg.Sensor.Driver {
	case "periph":
		return busSvcMod.NewPeriph(&busSvcMod.ConfigPeriph{
			Log:        log,
			Port:       cfg.Sensor.SpiPort,
			Frequency:  cfg.Sensor.Frequency,
			ChipSelect: cfg.Sensor.ChipSelect,
		})
	default:
		return busSvcMod.NewSimulator(&busSvcMod.ConfigSimulator{
			Log:         log,
			Temperature: cfg.Sensor.Simulator.Temperature,
			Amplitude:   cfg.Sensor.Simulator.Amplitude,
			Step:        cfg.Sensor.Simulator.Step,
			Reference:   cfg.Sensor.Simulator.Reference,
			FaultEvery:  cfg.Sensor.Simulator.FaultEvery,
		})
	}
}

// Транспорт по драйверу из конфигурации
func newTransport(ctx context.Context) (service.TransportSvc, error) {
	switch cfg.Transport.Driver {
	case "kafka":
		return transportSvcMod.NewKafka(&transportSvcMod.ConfigKafka{
			Log:     log,
			Brokers: cfg.Transport.Kafka.Brokers,
			GroupID: cfg.Transport.Kafka.GroupID,
		})
	case "websocket":
		return transportSvcMod.NewWebsocket(ctx, &transportSvcMod.ConfigWebsocket{
			Log: log,
			URL: cfg.Transport.Websocket.URL,
		})
	default:
		return transportSvcMod.NewMqtt(&transportSvcMod.ConfigMqtt{
			Log:            log,
			Broker:         cfg.Transport.Broker,
			ClientID:       cfg.Transport.ClientID,
			Username:       cfg.Transport.Username,
			Password:       cfg.Transport.Password,
			Qos:            byte(cfg.Transport.Qos),
			ConnectTimeout: cfg.ConnectTimeout(),
		})
	}
}
