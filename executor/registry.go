package executor

import (
	"sync"

	"github.com/7vars/reactor"
)

// Named executors are process-wide, the way the teacher's core.go kept a
// process-wide registry of named services (RegisterService/services map).
// Here the registry holds the three executors §5 names explicitly.
var (
	registryMu sync.RWMutex
	registry   = map[string]Executor{}
)

func init() {
	Register("immediate", NewImmediate())
	Register("single", NewSingle())
	Register("computation", NewComputation(reactor.CurrentDefaults().ComputationPoolSize))
}

// Register adds or replaces a named executor. Intended for early-process
// configuration; safe to call concurrently with Named lookups.
func Register(name string, ex Executor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = ex
}

// Named looks up a previously registered executor by name.
func Named(name string) (Executor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ex, ok := registry[name]
	return ex, ok
}

// Immediate returns the process-wide Immediate executor.
func Immediate() Executor {
	ex, _ := Named("immediate")
	return ex
}

// Single returns the process-wide Single executor.
func Single() Executor {
	ex, _ := Named("single")
	return ex
}

// Computation returns the process-wide Computation executor.
func Computation() Executor {
	ex, _ := Named("computation")
	return ex
}
