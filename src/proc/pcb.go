// Package proc implements the process control block, the per-process
// kernel stack and pid ownership, the FIFO ready queue, and the
// idle-context scheduler that funnels every context switch through one
// switch point.
package proc

import (
	"sync"
	"sync/atomic"
	"weak"

	"accnt"
	"defs"
	"limits"
	"mem"
	"trap"
	"vm"
)

/// liveSlots counts down from limits.Syslimit.Sysprocs as PCBs are created
/// and back up as Waitpid reaps a zombie, bounding how many processes (of
/// any status) may exist at once.
var liveSlots = limits.Sysatomic_t(limits.Syslimit.Sysprocs)

/// Status_t is a process's position in its lifecycle: Ready (on the run
/// queue or about to be), Running (installed as the processor's current
/// process), or Zombie (exited, waiting for its parent to reap it).
type Status_t int

const (
	Ready Status_t = iota
	Running
	Zombie
)

/// Inner_t is the mutably-locked part of a Pcb_t. Every scheduler entry
/// point must release its lock on this before calling Swtch: holding a
/// lock across a context switch would deadlock the next hart activity
/// that needs it, and this kernel has exactly one hart to provide it.
type Inner_t struct {
	sync.Mutex
	TrapContextPpn mem.Ppn_t
	BaseSize       int
	TaskContext    TaskContext_t
	Status         Status_t
	Vm             *vm.Vm_t
	Parent         weak.Pointer[Pcb_t]
	Children       []*Pcb_t
	ExitCode       int32

	// Acct accumulates this process's own user/system time, merged into
	// its parent's Acct by Waitpid when the zombie is reaped so a
	// process's usage is never lost to its exit. lastEntry/lastReturn
	// are kernel-time nanosecond timestamps accnt's trap hooks stamp on
	// every U<->S crossing; see AcctTrapEnter/AcctTrapExit.
	Acct       accnt.Accnt_t
	lastEntry  int
	lastReturn int
}

/// Pcb_t is a process control block: an immutable pid and kernel stack,
/// plus the mutably-locked Inner_t. refs counts the owners currently
/// holding this PCB: one reference taken at creation (the parent's
/// children-list slot, for a forked process), plus one while it sits in
/// the ready queue and one while it is the processor's current process.
/// A zombie awaiting its parent's waitpid is held by its children-list
/// slot alone, so refs is exactly one there, mirroring the
/// strong-reference-count assertion the original performs on the Arc it
/// removes from the parent's children Vec.
type Pcb_t struct {
	Pid    *PidTracker_t
	Kstack *vm.Kernelstack_t
	Inner  Inner_t
	refs   atomic.Int32
}

/// Mkpcb builds a fresh PCB from an ELF image: loads the address space,
/// allocates a pid and kernel stack, and installs the initial task and
/// trap contexts.
func Mkpcb(elf []uint8) (*Pcb_t, defs.Err_t) {
	if !liveSlots.Take() {
		return nil, defs.EAGAIN
	}
	addressSpace, userSp, entry, err := vm.FromElf(elf)
	if err != 0 {
		liveSlots.Give()
		return nil, err
	}
	pid := PidAlloc()
	kstack := vm.Mkkernelstack(pid.Pid)

	p := &Pcb_t{Pid: pid, Kstack: kstack}
	p.Inner.TrapContextPpn = addressSpace.TrapContextPpn
	p.Inner.BaseSize = int(userSp)
	p.Inner.Status = Ready
	p.Inner.Vm = addressSpace
	p.Inner.TaskContext = MkTaskContext(uint64(kstack.Top()), trapRetTrampolineAddr())
	p.refs.Store(1)

	trap.InstallAppInitContext(addressSpace.TrapContextPpn, uint64(kstack.Top()), uint64(entry), uint64(userSp))
	return p, 0
}

/// TrapRetTrampolineAddr returns the link address of the trap-return
/// trampoline a freshly initialised task context resumes into. Installed
/// by the composition root, which owns the trap package's assembly
/// symbols; the zero value is harmless until Swtch itself is installed,
/// since nothing dereferences Ra in a hosted test build.
var TrapRetTrampolineAddr func() uint64

func trapRetTrampolineAddr() uint64 {
	if TrapRetTrampolineAddr == nil {
		return 0
	}
	return TrapRetTrampolineAddr()
}

/// Getpid returns this process's pid.
func (p *Pcb_t) Getpid() int {
	return p.Pid.Pid
}

/// IsZombie reports whether the process has exited.
func (p *Pcb_t) IsZombie() bool {
	p.Inner.Lock()
	defer p.Inner.Unlock()
	return p.Inner.Status == Zombie
}

/// UserToken returns the SATP token of this process's address space.
func (p *Pcb_t) UserToken() uint64 {
	p.Inner.Lock()
	defer p.Inner.Unlock()
	return p.Inner.Vm.Pt.Token()
}

/// AddChild appends a child PCB to this process's children list,
/// recording the parent as a weak reference so the reverse edge never
/// keeps a zombie parent alive.
func (p *Pcb_t) AddChild(child *Pcb_t) {
	p.Inner.Lock()
	defer p.Inner.Unlock()
	child.Inner.Lock()
	child.Inner.Parent = weak.Make(p)
	child.Inner.Unlock()
	p.Inner.Children = append(p.Inner.Children, child)
}

/// Fork clones the current PCB: the child gets a deep copy of the address
/// space (no page sharing — this kernel has no CoW), its own pid and
/// kernel stack, and a task context that resumes via the same trap-return
/// path. Fork zeroes the child's a0 so fork returns 0 in the child; the
/// caller is responsible for enqueuing the child as Ready. ok is false,
/// with no child created, once Sysprocs live processes already exist.
func (p *Pcb_t) Fork() (child *Pcb_t, ok bool) {
	if !liveSlots.Take() {
		return nil, false
	}

	p.Inner.Lock()
	srcVm := p.Inner.Vm
	p.Inner.Unlock()

	childVm := vm.FromExistedUser(srcVm)
	pid := PidAlloc()
	kstack := vm.Mkkernelstack(pid.Pid)

	p.Inner.Lock()
	baseSize := p.Inner.BaseSize
	p.Inner.Unlock()

	child = &Pcb_t{Pid: pid, Kstack: kstack}
	child.Inner.Lock()
	child.Inner.TrapContextPpn = childVm.TrapContextPpn
	child.Inner.Vm = childVm
	child.Inner.Status = Ready
	child.Inner.BaseSize = baseSize
	child.Inner.TaskContext = MkTaskContext(uint64(kstack.Top()), trapRetTrampolineAddr())
	child.Inner.Unlock()

	trap.ZeroA0(childVm.TrapContextPpn)

	p.AddChild(child)
	child.refs.Store(1)
	return child, true
}

/// Exec replaces the calling process's address space in place with the
/// one built from elf, leaving its pid, kernel stack, and children
/// untouched.
func (p *Pcb_t) Exec(elf []uint8) defs.Err_t {
	newVm, userSp, entry, err := vm.FromElf(elf)
	if err != 0 {
		return err
	}
	p.Inner.Lock()
	p.Inner.Vm = newVm
	p.Inner.TrapContextPpn = newVm.TrapContextPpn
	p.Inner.BaseSize = int(userSp)
	kernelSp := uint64(p.Kstack.Top())
	p.Inner.Unlock()
	trap.InstallAppInitContext(newVm.TrapContextPpn, kernelSp, uint64(entry), uint64(userSp))
	return 0
}

/// Parent returns this process's parent, or nil if it has none (only
/// initproc should ever have none once boot completes).
func (p *Pcb_t) Parent() *Pcb_t {
	p.Inner.Lock()
	defer p.Inner.Unlock()
	return p.Inner.Parent.Value()
}
