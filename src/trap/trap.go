// Package trap owns the trap cycle around the trampoline and the supervisor
// trap handler: the one place the kernel crosses the U/S boundary. The
// trampoline's assembly primitives are supplied through hook variables. It
// knows nothing about processes or syscalls directly — it reaches them
// through hook variables installed by proc and scall at boot, so this
// package has no import of either and can be brought up first.
package trap

import (
	"caller"
	"defs"
	"fmt"
	"mem"
	"stats"
)

// scause.Interrupt bits this handler recognises.
const (
	excUserEnvCall       = 8
	excStoreFault        = 7
	excLoadFault         = 5
	excStorePageFault    = 15
	excLoadPageFault     = 13
	excIllegalInstr      = 2
	intSupervisorTimer   = 5
)

/// unrecognisedTraps dedupes the call-stack dump TrapHandler's default case
/// prints: the same wiring bug (an scause/stval combination no arm above
/// matches) tends to panic from the same call chain every time the hart
/// next traps, so only the first occurrence of a given chain gets a dump.
var unrecognisedTraps = caller.Distinct_caller_t{Enabled: true}

/// ReadScause returns the current scause CSR split into (exception code,
/// is-interrupt). Installed at boot; trap has no other way to read CSRs.
var ReadScause func() (code uint64, isInterrupt bool)

/// ReadStval returns the current stval CSR (faulting address or bad
/// instruction bits, depending on the trap).
var ReadStval func() uint64

/// WriteStvec points stvec at either the trampoline (direct mode, for
/// traps taken from U-mode) or trapFromKernel (for traps taken from
/// S-mode, which this kernel never expects to survive).
var WriteStvec func(handler uint64, direct bool)

/// EnableTimerInterrupt sets `sie.STIE`.
var EnableTimerInterrupt func()

/// SetNextTimerTrigger reprograms the timer for one scheduling quantum
/// ahead of the current `time` CSR.
var SetNextTimerTrigger func()

/// Syscall dispatches a syscall number with its three argument registers
/// to the kernel's syscall layer. Installed by the scall package at boot.
var Syscall func(num uint64, args [3]uint64) uint64

/// CurrentTrapContext returns the trap-context page of the running
/// process. Installed by proc at boot.
var CurrentTrapContext func() *TrapContext_t

/// CurrentUserToken returns the SATP token of the running process's
/// address space. Installed by proc at boot.
var CurrentUserToken func() uint64

/// ExitCurrentAndRunNext terminates the running process with a negative
/// exit code and switches to the scheduler. Installed by proc at boot.
var ExitCurrentAndRunNext func(code int32)

/// SuspendCurrentAndRunNext re-enqueues the running process as Ready and
/// switches to the scheduler. Installed by proc at boot.
var SuspendCurrentAndRunNext func()

/// AcctTrapEnter charges the running process's accounting with the user
/// time since its last return to U-mode. Installed by proc at boot.
var AcctTrapEnter func()

/// AcctTrapExit charges the running process's accounting with the system
/// time spent handling this trap. Installed by proc at boot.
var AcctTrapExit func()

/// Init points stvec at the kernel trap entry. Call once, before any user
/// process runs; the user-mode entry is installed lazily by
/// setUserTrapEntry every time a process is about to run (mirroring
/// trap_ret_to_user_mod always restoring it).
func Init() {
	setKernelTrapEntry()
}

func setKernelTrapEntry() {
	if WriteStvec != nil {
		WriteStvec(trapFromKernelAddr(), true)
	}
}

func setUserTrapEntry() {
	if WriteStvec != nil {
		WriteStvec(uint64(mem.TRAMPOLINE), true)
	}
}

// trapFromKernelAddr is a placeholder symbol address for the kernel-mode
// trap vector; the real value is resolved by the assembly that installs
// it, since Go has no portable way to take a function's link address on
// this target.
func trapFromKernelAddr() uint64 {
	if trapFromKernelAddrFn == nil {
		return 0
	}
	return trapFromKernelAddrFn()
}

/// TrapHandler is entered by the trampoline's alltraps stub with the
/// kernel address space already active. It never returns to its caller:
/// every path ends in TrapRetToUserMod, matching the Rust original's `!`
/// return type.
func TrapHandler() {
	setKernelTrapEntry()
	if AcctTrapEnter != nil {
		AcctTrapEnter()
	}
	cx := CurrentTrapContext()
	code, isInterrupt := ReadScause()
	stval := ReadStval()

	switch {
	case !isInterrupt && code == excUserEnvCall:
		cx.Sepc += 4
		cx.X[10] = Syscall(cx.X[17], [3]uint64{cx.X[10], cx.X[11], cx.X[12]})

	case !isInterrupt && (code == excStoreFault || code == excLoadFault ||
		code == excStorePageFault || code == excLoadPageFault):
		fmt.Printf("[kernel] page fault, bad addr = %#x, bad instruction = %#x, killed\n", stval, cx.Sepc)
		ExitCurrentAndRunNext(int32(defs.EFAULT))

	case !isInterrupt && code == excIllegalInstr:
		fmt.Printf("[kernel] illegal instruction at %#x, killed\n", cx.Sepc)
		ExitCurrentAndRunNext(int32(defs.EFAULT))

	case isInterrupt && code == intSupervisorTimer:
		SetNextTimerTrigger()
		stats.Sched.Yields.Inc()
		SuspendCurrentAndRunNext()

	default:
		if first, _ := unrecognisedTraps.Distinct(); first {
			caller.Callerdump(1)
		}
		panic(fmt.Sprintf("unsupported trap: interrupt=%v code=%v stval=%#x (%d distinct unrecognised call chains seen)",
			isInterrupt, code, stval, unrecognisedTraps.Len()))
	}
	TrapRetToUserMod()
}

/// TrapRetToUserMod resets the trap vector to the trampoline, then jumps
/// into the trampoline's restore stub with a0=trap-context VA,
/// a1=user satp, never returning (it leaves the kernel via sret).
func TrapRetToUserMod() {
	setUserTrapEntry()
	if AcctTrapExit != nil {
		AcctTrapExit()
	}
	jumpToRestore(uint64(mem.TRAP_CONTEXT), CurrentUserToken())
}

/// jumpToRestore performs the actual `fence.i; jr` into the trampoline's
/// restore entry. Backed by assembly the composition root installs through
/// SetJumpToRestore; never returns.
var jumpToRestore func(trapContextVa, userSatp uint64) = func(uint64, uint64) {
	// Composition root installs the real implementation before the
	// scheduler's first dispatch; panicking here would only happen if
	// boot wiring is incomplete.
	panic("trampoline jump not installed")
}

/// SetJumpToRestore installs the trampoline-jump primitive. jumpToRestore
/// is unexported because TrapRetToUserMod is the only caller that should
/// ever invoke it directly; the composition root still needs to supply
/// the real implementation, hence this setter.
func SetJumpToRestore(fn func(trapContextVa, userSatp uint64)) {
	jumpToRestore = fn
}

/// SetTrapFromKernelAddr installs the link address trapFromKernel
/// resolves to once the composition root has laid out the kernel image;
/// unexported for the same reason as SetJumpToRestore.
func SetTrapFromKernelAddr(fn func() uint64) {
	trapFromKernelAddrFn = fn
}

var trapFromKernelAddrFn func() uint64
