package proc

import "sync"

/// Manager_t is the kernel's single FIFO ready queue, protected by a plain
/// mutex standing in for the non-reentrant exclusive cell every other
/// global singleton in this kernel uses: a single hart, no nested traps,
/// so no lock is ever held across a context switch.
type Manager_t struct {
	mu    sync.Mutex
	queue []*Pcb_t
}

/// Manager is the kernel's sole process manager instance.
var Manager Manager_t

/// Enqueue appends process to the back of the ready queue and records the
/// queue as one of its owners.
func (m *Manager_t) Enqueue(process *Pcb_t) {
	process.refs.Add(1)
	m.mu.Lock()
	m.queue = append(m.queue, process)
	m.mu.Unlock()
}

/// Dequeue pops the process at the front of the ready queue, or nil if
/// empty, releasing the queue's ownership stake.
func (m *Manager_t) Dequeue() *Pcb_t {
	m.mu.Lock()
	if len(m.queue) == 0 {
		m.mu.Unlock()
		return nil
	}
	p := m.queue[0]
	m.queue = m.queue[1:]
	m.mu.Unlock()
	p.refs.Add(-1)
	return p
}

/// AddProcess enqueues process as Ready.
func AddProcess(process *Pcb_t) {
	Manager.Enqueue(process)
}

/// FetchProcess dequeues the next Ready process, if any.
func FetchProcess() *Pcb_t {
	return Manager.Dequeue()
}
