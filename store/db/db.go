package db

import (
	"context"
	"fmt"
	"io/ioutil"
	"sort"
	"time"

	"github.com/kirsrus/termopad/agent/model"
	"github.com/kirsrus/termopad/agent/pkg/tool"
	"github.com/kirsrus/termopad/agent/store"

	"github.com/juju/errors"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const (
	// Сжатая по дням история кэшируется, т.к. меняется только за текущий день
	cacheDuration = time.Minute
	cacheCleared  = 10 * time.Minute
)

// Db обращение к базе данных архива. Инициируется через NewDb
type Db struct {
	ctx context.Context
	log *logrus.Entry
	db  *gorm.DB
	now tool.Clock

	compactCache *cache.Cache
}

// ConfigDb конфигурация класса NewDb
type ConfigDb struct {
	Log    *logrus.Logger
	DbFile string
	// Источник времени для расчёта периодов. По умолчанию системные часы
	Clock tool.Clock
}

// NewDb конструктор класса Db
func NewDb(ctx context.Context, config *ConfigDb) (store.DbStore, error) {
	if config == nil {
		return nil, errors.New("не указана конфигурация")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if config.DbFile == "" {
		return nil, errors.New("в конфигурации не указан файл БД")
	}
	if config.Clock == nil {
		config.Clock = tool.SystemClock
	}

	// Подключаемся к БД и запускаем миграции
	conn, err := gorm.Open(sqlite.Open(config.DbFile), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, errors.Annotate(err, "ошибка подключения к файлу БД")
	}
	err = conn.AutoMigrate(Telemetry{}, ThresholdsLog{})
	if err != nil {
		return nil, errors.Annotate(err, "ошибка миграции БД")
	}

	db := Db{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "db",
			"scope":  "store",
			"file":   config.DbFile,
		}),
		db:  conn,
		now: config.Clock,

		compactCache: cache.New(cacheDuration, cacheCleared),
	}

	return &db, nil
}

// IsNotFound проверяет, что ошибка err обозначает, что записи не найдены
func (m Db) IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// SetTelemetry сохранение записи телеметрии в архив
func (m Db) SetTelemetry(event model.TelemetryEvent) error {
	var row Telemetry
	row.FromEvent(event)
	if err := m.db.WithContext(m.ctx).Create(&row).Error; err != nil {
		return errors.Annotate(err, "ошибка записи телеметрии в БД")
	}
	return nil
}

// LastTelemetry последняя сохранённая запись телеметрии. Отсутствие записей проверяется через IsNotFound
func (m Db) LastTelemetry() (*model.TelemetryEvent, error) {
	var row Telemetry
	if err := m.db.WithContext(m.ctx).Order("created_at DESC, id DESC").Take(&row).Error; err != nil {
		if m.IsNotFound(err) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, errors.Trace(err)
	}
	event := row.ToEvent()
	return &event, nil
}

// TelemetryLog возвращает значения температур за days дней (со смещением offsetDays) по каждому отсчёту.
// Если compact=true - данные сжимаются до дней и температура показывается только минимальная и
// максимальная для каждого дня. Отсчёты с ошибкой шины в историю не попадают
func (m Db) TelemetryLog(days uint, offsetDays uint, compact bool) ([]model.TemperatureMetric, error) {
	if days == 0 {
		return nil, errors.New("передано некорректное количество дней days=0")
	}
	key := fmt.Sprintf("%d:%d", days, offsetDays)
	if compact {
		if v, found := m.compactCache.Get(key); found {
			return v.([]model.TemperatureMetric), nil
		}
	}

	startDate, finishDate := m.calculateDate(days, offsetDays)
	rows := make([]Telemetry, 0)
	err := m.db.WithContext(m.ctx).
		Where("created_at > ? AND created_at <= ? AND bus_error = ?", startDate, finishDate, false).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		m.log.Warn(err)
		return nil, errors.Trace(err)
	}

	result := make([]model.TemperatureMetric, 0, len(rows))
	for _, v := range rows {
		result = append(result, v.ToMetric())
	}

	// Сжатие температуры при compact=true
	if compact {
		result = m.compactTemperature(result)
		m.compactCache.Set(key, result, cache.DefaultExpiration)
	}
	return result, nil
}

// Сжатие лога температуры до однодневного лога с указанием максимальной и минимальной температуры
func (m Db) compactTemperature(temperature []model.TemperatureMetric) []model.TemperatureMetric {
	// Промежуточная карта для объединения температур в один день
	days := make(map[string]model.TemperatureMetric)
	for _, v := range temperature {
		date := tool.RoundToDate(v.Date)
		key := date.Format("2006.01.02")
		c, ok := days[key]
		if !ok {
			days[key] = model.TemperatureMetric{
				Date:           date,
				TemperatureMax: v.Temperature,
				TemperatureMin: v.Temperature,
				Level:          v.Level,
				Fault:          v.Fault,
			}
			continue
		}
		if v.Temperature > c.TemperatureMax {
			c.TemperatureMax = v.Temperature
		}
		if v.Temperature < c.TemperatureMin {
			c.TemperatureMin = v.Temperature
		}
		// За день показывается наиболее тяжёлый уровень
		if v.Level.Severity() > c.Level.Severity() {
			c.Level = v.Level
		}
		c.Fault = c.Fault || v.Fault
		days[key] = c
	}

	result := make([]model.TemperatureMetric, 0, len(days))
	for _, v := range days {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result
}

// Вычисляет, начиная с текущей даты, количество дней days со смещением offset дней. Возвращается
// начало периода в startDate до finishDate
func (m Db) calculateDate(days uint, offset uint) (startDate, finishDate time.Time) {
	finishDate = m.now().Add(-(time.Duration(offset) * time.Hour * 24))
	startDate = finishDate.Add(-(time.Duration(days) * time.Hour * 24))
	return startDate, finishDate
}

// SetThresholdsLog сохранение применённого обновления порогов
func (m Db) SetThresholdsLog(createAt time.Time, update model.ThresholdsUpdate, result model.Thresholds) error {
	row := ThresholdsLog{
		GormModelUnscoped: GormModelUnscoped{CreatedAt: createAt},
		SetMinNormal:      update.MinNormal,
		SetMaxNormal:      update.MaxNormal,
		SetMinCritical:    update.MinCritical,
		SetMaxCritical:    update.MaxCritical,
		MinNormal:         result.MinNormal,
		MaxNormal:         result.MaxNormal,
		MinCritical:       result.MinCritical,
		MaxCritical:       result.MaxCritical,
	}
	if err := m.db.WithContext(m.ctx).Create(&row).Error; err != nil {
		return errors.Annotate(err, "ошибка записи журнала порогов в БД")
	}
	return nil
}

// ThresholdsLog журнал изменений порогов за days дней
func (m Db) ThresholdsLog(days uint) ([]store.ThresholdsLog, error) {
	startDate, _ := m.calculateDate(days, 0)
	rows := make([]ThresholdsLog, 0)
	if err := m.db.WithContext(m.ctx).Where("created_at > ?", startDate).Order("created_at").Find(&rows).Error; err != nil {
		m.log.Warn(err)
		return nil, errors.Trace(err)
	}
	result := make([]store.ThresholdsLog, 0, len(rows))
	for _, v := range rows {
		result = append(result, store.ThresholdsLog{
			CreatedAt: v.CreatedAt,
			Update: model.ThresholdsUpdate{
				MinNormal:   v.SetMinNormal,
				MaxNormal:   v.SetMaxNormal,
				MinCritical: v.SetMinCritical,
				MaxCritical: v.SetMaxCritical,
			},
			Result: model.Thresholds{
				MinNormal:   v.MinNormal,
				MaxNormal:   v.MaxNormal,
				MinCritical: v.MinCritical,
				MaxCritical: v.MaxCritical,
			},
		})
	}
	return result, nil
}

// Clean очищает записи в БД старше days дней
func (m Db) Clean(days int) error {
	if days <= 0 {
		return errors.Errorf("передано некорректное количество дней days=%d", days)
	}
	m.log.Info("запуск процесса очистки старых данных архива")

	lastDate, _ := m.calculateDate(uint(days), 0)
	var deleted int64
	for _, table := range []interface{}{&Telemetry{}, &ThresholdsLog{}} {
		res := m.db.WithContext(m.ctx).Where("created_at < ?", lastDate).Delete(table)
		if res.Error != nil {
			m.log.Warn(res.Error)
			return errors.Trace(res.Error)
		}
		deleted += res.RowsAffected
	}
	if deleted == 0 {
		m.log.Info("записей в архиве для удаления нет")
	} else {
		m.log.Infof("из архива удалено %d записей старше %s", deleted, lastDate.Format("2006.01.02"))
		m.compactCache.Flush()
	}
	return nil
}

// Close закрытие подключения к БД
func (m Db) Close() error {
	conn, err := m.db.DB()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(conn.Close())
}
