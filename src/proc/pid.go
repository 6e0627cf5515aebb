package proc

import "sync"

/// PidAllocator_t is a monotonic allocator with LIFO free-list recycling,
/// the same discipline as mem.Frameallocator_t.
type PidAllocator_t struct {
	sync.Mutex
	current  int
	recycled []int
}

/// Pids is the kernel's single pid allocator.
var Pids PidAllocator_t

/// Alloc hands out a PidTracker_t owning a fresh or recycled pid.
func (a *PidAllocator_t) Alloc() *PidTracker_t {
	a.Lock()
	defer a.Unlock()
	if n := len(a.recycled); n > 0 {
		pid := a.recycled[n-1]
		a.recycled = a.recycled[:n-1]
		return &PidTracker_t{Pid: pid}
	}
	pid := a.current
	a.current++
	return &PidTracker_t{Pid: pid}
}

/// Dealloc returns pid to the free list. Panics if pid was never handed
/// out or is already free — the same invariant mem.Frameallocator_t
/// enforces for frames.
func (a *PidAllocator_t) Dealloc(pid int) {
	a.Lock()
	defer a.Unlock()
	if pid >= a.current {
		panic("pid dealloc: never allocated")
	}
	for _, p := range a.recycled {
		if p == pid {
			panic("pid dealloc: already free")
		}
	}
	a.recycled = append(a.recycled, pid)
}

/// PidTracker_t owns exactly one pid. Drop must be called exactly once,
/// when the owning Pcb_t is reaped.
type PidTracker_t struct {
	Pid int
}

/// Drop returns the pid to the allocator. Go has no destructors, so
/// callers must invoke this explicitly rather than relying on scope exit.
func (t *PidTracker_t) Drop() {
	Pids.Dealloc(t.Pid)
}

/// PidAlloc allocates a fresh pid tracker.
func PidAlloc() *PidTracker_t {
	return Pids.Alloc()
}
