package fault

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sync"
)

// BugReport is printed with every invariant violation.
const BugReport = "please send a bug report at https://github.com/nvandessel/labkit/issues " +
	"with your code, the archive (*.sav) and this traceback"

// AbortExitCode is the status the process exits with after an invariant
// violation. It matches the status of a process killed by SIGABRT.
const AbortExitCode = 134

// abortMu is acquired by the first violating goroutine and never released, so
// concurrent violations cannot interleave their diagnostics.
var abortMu sync.Mutex

// Abortf reports an invariant violation and terminates the process.
// It never returns and cannot be recovered.
func Abortf(format string, args ...any) {
	abort(os.Stderr, fmt.Sprintf(format, args...))
}

// Assert aborts with msg when cond is false. An empty msg prints BugReport.
func Assert(cond bool, msg string) {
	if cond {
		return
	}
	if msg == "" {
		msg = BugReport
	}
	abort(os.Stderr, msg)
}

// Unreachable marks code paths that must never execute.
func Unreachable() {
	abort(os.Stderr, "unreachable code reached, "+BugReport)
}

func abort(w io.Writer, msg string) {
	abortMu.Lock()

	fmt.Fprintf(w, "%s\n", debug.Stack())
	fmt.Fprintf(w, "InvariantViolation: %s\n", msg)
	if msg != BugReport {
		fmt.Fprintf(w, "%s\n", BugReport)
	}

	_ = os.Stdout.Sync()
	_ = os.Stderr.Sync()
	os.Exit(AbortExitCode)
}
