package logger

import (
	"fmt"
	"path"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogrusContextHook добавляет в запись лога место вызова (файл:строка)
type LogrusContextHook struct{}

// Levels уровни, для которых срабатывает хук
func (hook LogrusContextHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire добавляет поле source
func (hook LogrusContextHook) Fire(entry *logrus.Entry) error {
	pc := make([]uintptr, 10)
	n := runtime.Callers(4, pc)
	frames := runtime.CallersFrames(pc[:n])
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "sirupsen/logrus") {
			entry.Data["source"] = fmt.Sprintf("%s:%d", path.Base(frame.File), frame.Line)
			break
		}
		if !more {
			break
		}
	}
	return nil
}
