package tool

import (
	"sync"
	"time"
)

// RoundToDate округляет дату в t до круглого дня
func RoundToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Clock источник текущего времени (предполагается уже синхронизированным)
type Clock func() time.Time

// SystemClock системные часы
func SystemClock() time.Time {
	return time.Now()
}

// Monotonic оборачивает часы так, что возвращаемые секунды эпохи никогда не убывают
// (например, при коррекции времени назад)
func Monotonic(clock Clock) func() int64 {
	var (
		mu   sync.Mutex
		last int64
	)
	return func() int64 {
		now := clock().Unix()
		mu.Lock()
		defer mu.Unlock()
		if now < last {
			return last
		}
		last = now
		return now
	}
}
