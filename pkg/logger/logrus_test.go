package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew(t *testing.T) {
	log := New(Config{Level: logrus.DebugLevel, Console: true})
	buf := new(bytes.Buffer)
	log.Out = buf

	log.WithField("module", "test").Debug("проверка")

	out := buf.String()
	if !strings.Contains(out, "проверка") || !strings.Contains(out, "module=test") {
		t.Errorf("неожиданная запись лога: %s", out)
	}
	if !strings.Contains(out, "logrus_test.go:") {
		t.Errorf("хук не добавил место вызова: %s", out)
	}
}
