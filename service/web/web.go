package web

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kirsrus/termopad/agent/model"
	"github.com/kirsrus/termopad/agent/service"
	"github.com/kirsrus/termopad/agent/service/web/graph"
	"github.com/kirsrus/termopad/agent/store"

	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	waitRestartStartServer = 10 * time.Second
	shutdownTimeout        = 5 * time.Second
	webPort                = 8080
	// Запись считается устаревшей, если за два периода опроса не пришло новой
	lastExpiration = 10 * time.Second
	lastKey        = "last"
	historyDays    = 1
	// Каждые 10 секунд подавать в канал подписки ping, иначе клиент его закроет
	keepAlivePingInterval = 10 * time.Second
)

// ConfigWeb конфигурация структуры Web
type ConfigWeb struct {
	Log *logrus.Logger

	WebPort uint
	// Время, после которого последняя запись телеметрии считается устаревшей
	LastExpiration time.Duration

	// Источник метрик для /metrics. Без него точка не регистрируется
	Gatherer prometheus.Gatherer
	// Состояние цикла опроса датчика
	State func() model.SamplerState
}

// Web служба WEB-сервисов. Инициализируется через NewWeb
type Web struct {
	log            *logrus.Entry
	e              *echo.Echo
	graphqlHandler *handler.Server
	resolver       *graph.Resolver

	thresholds store.ThresholdStore
	dbStore    store.DbStore
	state      func() model.SamplerState

	last *cache.Cache

	webPort uint

	mu      sync.Mutex
	running bool
}

// NewWeb конструктор структуры Web. dbStore может отсутствовать, тогда история недоступна
func NewWeb(thresholds store.ThresholdStore, dbStore store.DbStore, config *ConfigWeb) (service.WebSvc, error) {
	if config == nil {
		return nil, errors.New("не установлена конфигурация")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if thresholds == nil {
		return nil, errors.New("не передано хранилище порогов")
	}
	log := config.Log.WithFields(map[string]interface{}{
		"module": "web",
		"scope":  "service",
	})
	expiration := lastExpiration
	if config.LastExpiration != 0 {
		expiration = config.LastExpiration
	}

	web := &Web{
		log:        log,
		e:          echo.New(),
		thresholds: thresholds,
		dbStore:    dbStore,
		state:      config.State,
		last:       cache.New(expiration, 2*expiration),
		webPort:    webPort,
	}
	if config.WebPort != 0 {
		web.webPort = config.WebPort
	}
	if web.state == nil {
		web.state = func() model.SamplerState { return model.StateIdle }
	}

	// Точка входа в GraphQL: запросы по POST, подписка на телеметрию по WebSocket
	var err error
	web.resolver, err = graph.NewResolver(thresholds, dbStore, &graph.ConfigResolver{
		Log:   config.Log,
		State: web.state,
		Last:  web.lastTelemetry,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	schema, err := graph.NewExecutableSchema(web.resolver)
	if err != nil {
		return nil, errors.Trace(err)
	}
	web.graphqlHandler = handler.New(schema)
	web.graphqlHandler.AddTransport(transport.POST{})
	web.graphqlHandler.AddTransport(
		transport.Websocket{
			KeepAlivePingInterval: keepAlivePingInterval,
			Upgrader: websocket.Upgrader{
				CheckOrigin: func(r *http.Request) bool {
					return true
				},
				ReadBufferSize:  1024,
				WriteBufferSize: 1024,
			},
		})

	web.e.HideBanner = true
	web.e.HidePort = true
	web.e.Use(middleware.Recover())
	web.e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	web.e.GET("/api/status", web.status)
	web.e.GET("/api/thresholds", web.getThresholds)
	web.e.GET("/api/thresholds/log", web.thresholdsLog)
	web.e.GET("/api/history", web.history)
	web.GraphQLApi("/api/graphql")
	if config.Gatherer != nil {
		web.e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})))
	}

	return web, nil
}

// Serve запускает HTTP-сервер и блокируется до завершения ctx. При неожиданном
// завершении сервер перезапускается
func (m *Web) Serve(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("сервер уже запущен")
	}
	m.running = true
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := m.e.Shutdown(shutdownCtx); err != nil {
			m.log.Warnf("ошибка остановки сервера: %v", err)
		}
	}()

	for {
		m.log.Infof("старт HTTP-сервера на порту :%d", m.webPort)
		err := m.e.Start(fmt.Sprintf(":%d", m.webPort))
		if ctx.Err() != nil {
			m.log.Info("HTTP-сервер остановлен")
			return nil
		}
		m.log.Errorf("сервер неожиданно завершил работу: %v", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(waitRestartStartServer):
		}
	}
}

// TelemetryChanged новая запись телеметрии
func (m *Web) TelemetryChanged(event model.TelemetryEvent) {
	m.last.Set(lastKey, event, cache.DefaultExpiration)
	m.resolver.TelemetryChanged(event)
}

// GraphQLApi подключение обработчика GraphQL по пути path
func (m *Web) GraphQLApi(path string) {
	m.e.GET(path, func(c echo.Context) error {
		req := c.Request()
		res := c.Response()
		m.graphqlHandler.ServeHTTP(res, req)
		return nil
	})
	m.e.POST(path, func(c echo.Context) error {
		req := c.Request()
		res := c.Response()
		m.graphqlHandler.ServeHTTP(res, req)
		return nil
	})
}

// Последняя не устаревшая запись телеметрии
func (m *Web) lastTelemetry() (*model.TelemetryEvent, bool) {
	value, found := m.last.Get(lastKey)
	if !found {
		return nil, false
	}
	event := value.(model.TelemetryEvent)
	return &event, true
}

// ServeHTTP обработка запроса без запуска сервера
func (m *Web) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.e.ServeHTTP(w, r)
}

// Состояние агента
func (m *Web) status(c echo.Context) error {
	res := statusView{
		State:      m.state(),
		Thresholds: m.thresholds.Read(),
		Stale:      true,
	}
	if event, found := m.lastTelemetry(); found {
		res.Last = newTelemetryView(*event)
		res.Stale = false
	} else if m.dbStore != nil {
		event, err := m.dbStore.LastTelemetry()
		switch {
		case err == nil:
			res.Last = newTelemetryView(*event)
		case !m.dbStore.IsNotFound(err):
			m.log.Warnf("ошибка получения последней записи из БД: %v", err)
		}
	}
	return c.JSON(http.StatusOK, res)
}

func (m *Web) getThresholds(c echo.Context) error {
	return c.JSON(http.StatusOK, m.thresholds.Read())
}

// Журнал изменений порогов за days дней
func (m *Web) thresholdsLog(c echo.Context) error {
	if m.dbStore == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"message": "архив отключен"})
	}
	days, err := uintParam(c, "days", historyDays)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": err.Error()})
	}
	res, err := m.dbStore.ThresholdsLog(days)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "ошибка: " + err.Error()})
	}
	return c.JSON(http.StatusOK, res)
}

// История температуры: days, offset (дней), compact
func (m *Web) history(c echo.Context) error {
	if m.dbStore == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"message": "архив отключен"})
	}
	days, err := uintParam(c, "days", historyDays)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": err.Error()})
	}
	offset, err := uintParam(c, "offset", 0)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": err.Error()})
	}
	compact := false
	if v := c.QueryParam("compact"); v != "" {
		if compact, err = strconv.ParseBool(v); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"message": fmt.Sprintf("некорректный параметр compact: %s", v)})
		}
	}
	res, err := m.dbStore.TelemetryLog(days, offset, compact)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "ошибка: " + err.Error()})
	}
	return c.JSON(http.StatusOK, res)
}

func uintParam(c echo.Context, name string, def uint) (uint, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	res, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return 0, errors.Errorf("некорректный параметр %s: %s", name, v)
	}
	return uint(res), nil
}
