package reactor

import (
	"sync/atomic"
	"time"

	"github.com/spf13/viper"
)

// Config is a thin facade over layered configuration (env, file, flags).
// Grounded on the teacher's settings.go viper wrapper; trimmed to the
// accessors the runtime actually calls.
type Config interface {
	GetBool(string) bool
	GetInt(string) int
	GetString(string) string
	GetDuration(string) time.Duration

	IsSet(string) bool

	GetIntDefault(string, int) int
	GetStringDefault(string, string) string
	GetDurationDefault(string, time.Duration) time.Duration
}

func config() Config {
	return &viperWrapper{
		viper.GetViper(),
	}
}

type viperWrapper struct {
	*viper.Viper
}

func (w *viperWrapper) GetIntDefault(key string, v int) int {
	if w.IsSet(key) {
		return w.GetInt(key)
	}
	return v
}

func (w *viperWrapper) GetStringDefault(key string, v string) string {
	if w.IsSet(key) {
		return w.GetString(key)
	}
	return v
}

func (w *viperWrapper) GetDurationDefault(key string, v time.Duration) time.Duration {
	if w.IsSet(key) {
		return w.GetDuration(key)
	}
	return v
}

// Defaults is the process-wide configuration record named in the design
// notes: the error hook, default executors and bufferSize() default are
// process state, initialized once at startup and swapped atomically
// rather than guarded by a lock.
type Defaults struct {
	// BufferSize is the default prefetch/queue capacity an asynchronous
	// boundary operator requests when none is specified explicitly.
	BufferSize int
	// ComputationPoolSize sizes the shared Computation executor's worker pool.
	ComputationPoolSize int
}

var defaultSettings atomic.Pointer[Defaults]

func init() {
	conf := config()
	defaultSettings.Store(&Defaults{
		BufferSize:          conf.GetIntDefault("reactor.buffer.size", 128),
		ComputationPoolSize: conf.GetIntDefault("reactor.computation.pool", 4),
	})
}

// CurrentDefaults returns the active process-wide defaults record.
func CurrentDefaults() Defaults {
	return *defaultSettings.Load()
}

// SetDefaults atomically swaps the process-wide defaults record. Intended
// for early-process configuration, before any publisher is attached.
func SetDefaults(d Defaults) {
	defaultSettings.Store(&d)
}

// DefaultBufferSize is the prefetch amount used when an operator's
// constructor does not specify one explicitly.
func DefaultBufferSize() int {
	return CurrentDefaults().BufferSize
}
