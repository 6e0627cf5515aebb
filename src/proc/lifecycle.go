package proc

import (
	"fmt"

	"defs"
	"mem"
	"sbi"
	"stats"
)

/// IdlePid is the pid of initproc, the root of the process tree and the
/// only process with no parent. Exiting it shuts down the board.
const IdlePid = 0

var initproc *Pcb_t

/// AddInitproc builds initproc from elf and enqueues it as Ready. Call
/// once, after the kernel address space, trap vector, and timer are up.
func AddInitproc(elf []uint8) defs.Err_t {
	p, err := Mkpcb(elf)
	if err != 0 {
		return err
	}
	initproc = p
	AddProcess(p)
	return 0
}

/// SuspendCurrentAndRunNext re-enqueues the running process as Ready and
/// switches its task context out to the idle context. Installed as the
/// trap package's SuspendCurrentAndRunNext hook.
func SuspendCurrentAndRunNext() {
	process := TheProcessor.TakeCurrentProcess()
	if process == nil {
		panic("suspend: no current process")
	}
	process.Inner.Lock()
	ctxPtr := &process.Inner.TaskContext
	process.Inner.Status = Ready
	process.Inner.Unlock()

	AddProcess(process)
	stats.Sched.Scheds.Inc()
	Schedule(ctxPtr)
}

/// ExitCurrentAndRunNext terminates the running process with code,
/// reparenting its children to initproc, recycling its address-space data
/// pages, and switching a scratch task context out to the idle context.
// The PCB itself stays alive as a zombie until its parent's waitpid
// removes it. Exiting initproc shuts down the board.
func ExitCurrentAndRunNext(code int32) {
	process := TheProcessor.TakeCurrentProcess()
	if process == nil {
		panic("exit: no current process")
	}
	if process.Getpid() == IdlePid {
		fmt.Printf("[kernel] initproc exited with code %d\n", code)
		sbi.Shutdown(code == 0)
	}

	process.Inner.Lock()
	process.Inner.Status = Zombie
	process.Inner.ExitCode = code
	children := process.Inner.Children
	process.Inner.Children = nil
	addressSpace := process.Inner.Vm
	process.Inner.Unlock()

	for _, child := range children {
		initproc.AddChild(child)
	}
	addressSpace.RecycleDataPages()

	stats.Sched.Exits.Inc()
	var scratch TaskContext_t
	Schedule(&scratch)
}

/// Fork clones the current process, enqueues the child as Ready, and
/// returns the child's pid to the (parent's) caller, or -1 if the system
/// is already at its Sysprocs limit.
func Fork() int {
	current := CloneCurrentProcess()
	child, ok := current.Fork()
	if !ok {
		return -1
	}

	AddProcess(child)
	stats.Sched.Forks.Inc()
	return child.Getpid()
}

/// Exec rebuilds the current process's address space from the built-in
/// app named by path, or returns ENOENT if no such app is linked in.
func Exec(path string, lookup func(string) ([]uint8, bool)) defs.Err_t {
	data, ok := lookup(path)
	if !ok {
		return defs.ENOENT
	}
	current := CloneCurrentProcess()
	stats.Sched.Execs.Inc()
	return current.Exec(data)
}

/// Waitpid looks for a zombie child matching pid (-1 matches any). It
/// returns (-1, ECHILD) if no child matches at all, (-2, EAGAIN) if a
/// matching child exists but none is a zombie yet, or removes the zombie,
/// writes exitCode, and returns its pid.
func Waitpid(pid int) (foundPid int, exitCode int32, err defs.Err_t) {
	current := CloneCurrentProcess()
	current.Inner.Lock()
	defer current.Inner.Unlock()

	idx := -1
	anyMatch := false
	for i, c := range current.Inner.Children {
		if pid != -1 && c.Getpid() != pid {
			continue
		}
		anyMatch = true
		if c.IsZombie() {
			idx = i
			break
		}
	}
	if !anyMatch {
		return -1, 0, defs.ECHILD
	}
	if idx < 0 {
		return -2, 0, defs.EAGAIN
	}

	child := current.Inner.Children[idx]
	if child.refs.Load() != 1 {
		panic("waitpid: zombie has more than one owner")
	}
	current.Inner.Children = append(current.Inner.Children[:idx], current.Inner.Children[idx+1:]...)
	child.refs.Add(-1)

	child.Inner.Lock()
	code := child.Inner.ExitCode
	child.Inner.Unlock()
	current.Inner.Acct.Add(&child.Inner.Acct)
	child.Pid.Drop()
	child.Kstack.Drop()
	liveSlots.Give()

	return child.Getpid(), code, 0
}

/// Sbrk grows or shrinks the current process's heap by n bytes.
func Sbrk(n int) (mem.Va_t, defs.Err_t) {
	current := CloneCurrentProcess()
	current.Inner.Lock()
	defer current.Inner.Unlock()
	return current.Inner.Vm.Sbrk(n)
}

/// Munmap unmaps [addr, addr+length) from the current process's address
/// space.
func Munmap(addr mem.Va_t, length int) defs.Err_t {
	current := CloneCurrentProcess()
	current.Inner.Lock()
	defer current.Inner.Unlock()
	return current.Inner.Vm.Munmap(addr, length)
}

/// CurrentTrapContextPpn returns the PPN of the running process's trap
/// context page, for translating it to a live pointer.
func CurrentTrapContextPpn() mem.Ppn_t {
	current := CloneCurrentProcess()
	current.Inner.Lock()
	defer current.Inner.Unlock()
	return current.Inner.TrapContextPpn
}
