package executor

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/7vars/reactor"
)

// Runtime ties process shutdown to SIGINT/SIGTERM, the way the teacher's
// GtorSystem (gtor.go) wired them into Terminate()/Terminated(). It does
// not dispose any Worker or Executor; Terminated only reports that a
// signal arrived or Terminate was called.
type Runtime struct {
	once       sync.Once
	terminate  chan struct{}
	terminated chan struct{}
}

// NewRuntime installs a SIGINT/SIGTERM handler that calls Terminate.
func NewRuntime() *Runtime {
	rt := &Runtime{
		terminate:  make(chan struct{}),
		terminated: make(chan struct{}),
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigs:
			reactor.Log().Infof("reactor: received signal %v, terminating", sig)
		case <-rt.terminate:
		}
		signal.Stop(sigs)
		close(rt.terminated)
	}()

	return rt
}

// Terminate requests shutdown. Idempotent.
func (rt *Runtime) Terminate() {
	rt.once.Do(func() {
		close(rt.terminate)
	})
}

// Terminated is closed once a SIGINT/SIGTERM arrives or Terminate is called.
func (rt *Runtime) Terminated() <-chan struct{} {
	return rt.terminated
}
