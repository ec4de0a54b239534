// Package logrus adapts a *logrus.Entry to redisent.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/redisent"
)

var _ redisent.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New wraps l, tagging every entry with the component name.
func New(l *logrus.Logger) Logger {
	return Logger{E: l.WithField("component", "redisent")}
}

func (l Logger) Debug(msg string, f redisent.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f redisent.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f redisent.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f redisent.Fields) { l.with(f).Error(msg) }

func (l Logger) with(f redisent.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	return l.E.WithFields(logrus.Fields(f))
}
