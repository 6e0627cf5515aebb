// Package res admits bounded kernel operations against a fixed system-wide
// budget of in-flight units. There is no blocking variant: a
// single hart cooperative kernel can't sleep a caller on a resource it
// alone produces and consumes, so admission either succeeds immediately or
// the caller aborts the operation with ENOMEM.
package res

import (
	"limits"
	"sync"
)

var (
	mu        sync.Mutex
	inflight  int
)

/// Resadd_noblock attempts to admit n units of resource without blocking.
/// It fails once the in-flight total would exceed
/// limits.Syslimit.Copybudget. Units count only while in flight: K2user and
/// User2k release each page's unit once that page is copied, so the total a
/// single copy loop walks is not bounded by the budget.
func Resadd_noblock(n int) bool {
	mu.Lock()
	defer mu.Unlock()
	if inflight+n > limits.Syslimit.Copybudget {
		return false
	}
	inflight += n
	return true
}

/// Resdel releases n units previously admitted by Resadd_noblock.
func Resdel(n int) {
	mu.Lock()
	defer mu.Unlock()
	inflight -= n
	if inflight < 0 {
		panic("resource accounting underflow")
	}
}
