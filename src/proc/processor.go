package proc

// Swtch is the callee-saved register save/restore between two task
// contexts, installed by the composition root (it owns the assembly).
// Every scheduler entry point below releases all locks before calling it,
// per the kernel's "no exclusive cell held across a switch" rule.

/// Processor_t holds the hart's current process (nil when idle) and the
/// idle context every transition switches through. There is exactly one
/// instance: this kernel has one hart.
type Processor_t struct {
	current      *Pcb_t
	idleContext  TaskContext_t
}

/// TheProcessor is the kernel's sole processor instance.
var TheProcessor Processor_t

/// idleCtxPtr returns the address of the processor's idle-side task
/// context, the fixed far end of every switch.
func (proc *Processor_t) idleCtxPtr() *TaskContext_t {
	return &proc.idleContext
}

/// TakeCurrentProcess removes and returns the processor's current
/// process, releasing the processor's ownership stake on it.
func (proc *Processor_t) TakeCurrentProcess() *Pcb_t {
	p := proc.current
	proc.current = nil
	if p != nil {
		p.refs.Add(-1)
	}
	return p
}

/// CurrentProcess returns the processor's current process without taking
/// it.
func (proc *Processor_t) CurrentProcess() *Pcb_t {
	return proc.current
}

/// RunProcesses is the scheduler loop: forever, fetch a Ready process,
/// mark it Running, install it as current, and switch the idle context
/// out to its task context. Control returns here only when that process
/// voluntarily switches back (suspend or exit); the loop then repeats.
// It runs on the hart's boot stack and never returns.
func RunProcesses() {
	for {
		process := FetchProcess()
		if process == nil {
			continue
		}
		idleCtxPtr := TheProcessor.idleCtxPtr()

		process.Inner.Lock()
		nextCtxPtr := &process.Inner.TaskContext
		process.Inner.Status = Running
		process.Inner.Unlock()

		process.refs.Add(1)
		TheProcessor.current = process

		Swtch(idleCtxPtr, nextCtxPtr)
	}
}

/// CloneCurrentProcess returns the processor's current process, or nil if
/// the hart is idle (only possible before the first process is
/// dispatched).
func CloneCurrentProcess() *Pcb_t {
	return TheProcessor.current
}

/// SetCurrentForTest installs p as the processor's current process without
/// going through RunProcesses' switch, for tests exercising syscalls that
/// read CloneCurrentProcess() directly rather than scheduling a real task
/// context.
func SetCurrentForTest(p *Pcb_t) {
	TheProcessor.current = p
}

/// CurrentUserToken returns the SATP token of the running process's
/// address space. Installed as the trap package's CurrentUserToken hook.
func CurrentUserToken() uint64 {
	return CloneCurrentProcess().UserToken()
}

/// AcctTrapEnter charges the running process's Acct with the user time
/// elapsed since it last returned to U-mode, then stamps the kernel-entry
/// time used by AcctTrapExit to charge system time. Installed as the
/// trap package's AcctTrapEnter hook, called first thing in TrapHandler.
func AcctTrapEnter() {
	p := CloneCurrentProcess()
	if p == nil {
		return
	}
	now := p.Inner.Acct.Now()
	p.Inner.Lock()
	if p.Inner.lastReturn != 0 {
		p.Inner.Acct.Utadd(now - p.Inner.lastReturn)
	}
	p.Inner.lastEntry = now
	p.Inner.Unlock()
}

/// AcctTrapExit charges the running process's Acct with the system time
/// elapsed since AcctTrapEnter and stamps the return-to-user time.
/// Installed as the trap package's AcctTrapExit hook, called last thing
/// in TrapRetToUserMod before the jump into the trampoline's restore stub.
func AcctTrapExit() {
	p := CloneCurrentProcess()
	if p == nil {
		return
	}
	now := p.Inner.Acct.Now()
	p.Inner.Lock()
	p.Inner.Acct.Finish(p.Inner.lastEntry)
	p.Inner.lastReturn = now
	p.Inner.Unlock()
}

/// Schedule switches savedCtx (the calling process's task context, about
/// to stop running) out to the idle context, returning control to
/// RunProcesses' switch point. Callers must have released every lock
/// first.
func Schedule(savedCtx *TaskContext_t) {
	idleCtxPtr := TheProcessor.idleCtxPtr()
	Swtch(savedCtx, idleCtxPtr)
}
