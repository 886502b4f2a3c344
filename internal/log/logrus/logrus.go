// Package logrus adapts github.com/sirupsen/logrus to log.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/aristath/fetchdeck/internal/log"
)

type logger struct {
	*logrus.Entry
}

// NewLogrus returns a log.Logger backed by the given logrus entry.
func NewLogrus(l *logrus.Entry) log.Logger {
	return logger{Entry: l}
}

func (l logger) WithValues(kv log.Kv) log.Logger {
	return NewLogrus(l.Entry.WithFields(logrus.Fields(kv)))
}
