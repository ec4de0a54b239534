// Package zap adapts a *zap.Logger to redisent.Logger.
package zap

import (
	"go.uber.org/zap"

	"github.com/unkn0wn-root/redisent"
)

var _ redisent.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New wraps l, tagging every entry with the component name.
func New(l *zap.Logger) Logger { return Logger{L: l.With(zap.String("component", "redisent"))} }

func (z Logger) Debug(msg string, f redisent.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f redisent.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f redisent.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f redisent.Fields) { z.L.Error(msg, fields(f)...) }

func fields(f redisent.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
