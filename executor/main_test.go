package executor

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain runs the suite under a goroutine-leak check. Every
// fifoWorker.run goroutine is excluded from it: the process-wide "single"
// and "computation" executors registered at package init keep theirs for
// the life of the binary, and the filter matches by function name, so a
// fifoWorker a test leaves undisposed is not reported either.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/7vars/reactor/executor.(*fifoWorker).run"))
}
