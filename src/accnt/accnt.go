// Package accnt tracks per-process user/system time, merged into a
// process's inner state and summed into its parent when the parent reaps it.
package accnt

import "sync"
import "sync/atomic"
import "time"

/// Accnt_t accumulates per-process accounting information. Both Userns and
/// Sysns store runtime in nanoseconds. The embedded mutex lets callers take
/// a consistent snapshot when merging a reaped child's accounting into its
/// parent.
type Accnt_t struct {
	Userns int64 /// nanoseconds of user time consumed
	Sysns  int64 /// nanoseconds of system time consumed
	sync.Mutex
}

/// Utadd adds delta nanoseconds to the user-time counter.
func (a *Accnt_t) Utadd(delta int) {
	atomic.AddInt64(&a.Userns, int64(delta))
}

/// Systadd adds delta nanoseconds to the system-time counter.
func (a *Accnt_t) Systadd(delta int) {
	atomic.AddInt64(&a.Sysns, int64(delta))
}

/// Now returns the current time in nanoseconds.
func (a *Accnt_t) Now() int {
	return int(time.Now().UnixNano())
}

/// Finish adds the time elapsed since inttime to the system-time counter.
func (a *Accnt_t) Finish(inttime int) {
	a.Systadd(a.Now() - inttime)
}

/// Add merges another process's accounting into this one, taken when a
/// zombie child is reaped so its usage isn't lost.
func (a *Accnt_t) Add(n *Accnt_t) {
	a.Lock()
	a.Userns += n.Userns
	a.Sysns += n.Sysns
	a.Unlock()
}
