package osext

import (
	"context"
	"os"
	"sync"

	"github.com/grafana/xk6-headless/log"
)

var (
	processRegister   = map[int]string{} //nolint:gochecknoglobals
	processRegisterMu = sync.Mutex{}     //nolint:gochecknoglobals
)

// Register records a running process under the run ID of ctx.
func Register(ctx context.Context, logger *log.Logger, pid int) {
	processRegisterMu.Lock()
	defer processRegisterMu.Unlock()

	rID := GetRunID(ctx)
	logger.Debugf("Process:register", "registered process pid:%d run:%q", pid, rID)

	processRegister[pid] = rID
}

// Unregister forgets a process that ended.
func Unregister(pid int) {
	processRegisterMu.Lock()
	defer processRegisterMu.Unlock()

	delete(processRegister, pid)
}

// Registered returns the pids registered under the run ID of ctx, or all
// of them when ctx has no run ID.
func Registered(ctx context.Context) []int {
	processRegisterMu.Lock()
	defer processRegisterMu.Unlock()

	return registered(GetRunID(ctx))
}

func registered(rID string) []int {
	pids := make([]int, 0, len(processRegister))
	for pid, r := range processRegister {
		if rID != "" && r != rID {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}

// ForceProcessShutdown kills the processes registered under the run ID of
// ctx, or all of them when ctx has no run ID. It should be called when
// xk6-headless is having to shutdown due to an internal error or an
// interrupt.
func ForceProcessShutdown(ctx context.Context) {
	processRegisterMu.Lock()
	defer processRegisterMu.Unlock()

	for _, pid := range registered(GetRunID(ctx)) {
		Kill(pid)
		delete(processRegister, pid)
	}
}

// Kill will look for and kill the process with the given pid. It is a
// variable so that tests can replace it.
var Kill = func(pid int) { //nolint:gochecknoglobals
	p, err := os.FindProcess(pid)
	if err != nil {
		// optimistically continue and don't kill the process
		return
	}
	// no need to check the error since we're already dying.
	_ = p.Kill()
	_ = p.Release()
}
