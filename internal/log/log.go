// Package log defines the logger used across fetchdeck.
//
// Packages receive a Logger through their config and fall back to Noop when
// none is set, so library code never decides where output goes.
package log

// Kv is a set of structured key-value pairs attached to a logger.
type Kv = map[string]any

// Logger is the logging interface every component depends on.
type Logger interface {
	Infof(format string, args ...any)
	Warningf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
	WithValues(values Kv) Logger
}

// Noop discards everything.
var Noop Logger = noop{}

type noop struct{}

func (noop) Infof(string, ...any)    {}
func (noop) Warningf(string, ...any) {}
func (noop) Errorf(string, ...any)   {}
func (noop) Debugf(string, ...any)   {}
func (n noop) WithValues(Kv) Logger  { return n }
