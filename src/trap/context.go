package trap

import (
	"unsafe"

	"mem"
)

/// TrapContext_t is the user-mode register save area. It lives on a
/// dedicated page at virtual address mem.TRAP_CONTEXT in every user
/// address space; the trampoline's alltraps/restore stubs read and write
/// it directly, so its layout must not change without updating them.
type TrapContext_t struct {
	X       [32]uint64 /// general-purpose registers x0..x31
	Sstatus uint64
	Sepc    uint64
	// the following are populated once at process creation and never
	// touched by user code; the trampoline uses them to get back into
	// the kernel on the next trap.
	KernelSatp     uint64
	KernelSp       uint64
	TrapHandler    uint64 /// address of trapHandlerEntry
}

/// AppInitContext builds the trap context a freshly loaded process starts
/// with: entry/sp in the low fields, sstatus with SPP=0 (return to U-mode),
/// and the three kernel-reentry fields needed by the trampoline.
func AppInitContext(entry, sp, kernelSatp, kernelSp, trapHandler uint64) TrapContext_t {
	cx := TrapContext_t{}
	cx.X[2] = sp
	cx.Sstatus = sstatusUserMode()
	cx.Sepc = entry
	cx.KernelSatp = kernelSatp
	cx.KernelSp = kernelSp
	cx.TrapHandler = trapHandler
	return cx
}

// sstatusUserMode returns the sstatus bit pattern for entry into U-mode
// with interrupts enabled once sret executes: SPP clear, SPIE set.
func sstatusUserMode() uint64 {
	const sstatusSPIE = 1 << 5
	return sstatusSPIE
}

func contextAt(ppn mem.Ppn_t) *TrapContext_t {
	pg := mem.Frames.Getpg(ppn)
	return (*TrapContext_t)(unsafe.Pointer(pg))
}

/// ContextAt exposes contextAt to the composition root, which has no other
/// way to turn a trap-context page number into a live *TrapContext_t: it
/// backs the CurrentTrapContext hook, wired to proc's current process.
func ContextAt(ppn mem.Ppn_t) *TrapContext_t {
	return contextAt(ppn)
}

/// CurrentKernelSatp returns the kernel address space's SATP token.
/// Installed by the composition root, which alone holds the kernel
/// address space; trap only needs its value, not its owner.
var CurrentKernelSatp func() uint64

/// TrapHandlerEntry returns the link address the trampoline should treat
/// as the kernel's trap-handler entry point. Installed by the composition
/// root, which owns this package's assembly symbols.
var TrapHandlerEntry func() uint64

func currentKernelSatp() uint64 {
	if CurrentKernelSatp == nil {
		return 0
	}
	return CurrentKernelSatp()
}

func trapHandlerEntry() uint64 {
	if TrapHandlerEntry == nil {
		return 0
	}
	return TrapHandlerEntry()
}

/// InstallAppInitContext writes a fresh TrapContext_t for a process about
/// to run for the first time (or that just exec'd) into its trap-context
/// page. kernelSp is the top of the owning process's kernel stack.
func InstallAppInitContext(ppn mem.Ppn_t, kernelSp, entry, sp uint64) {
	cx := AppInitContext(entry, sp, currentKernelSatp(), kernelSp, trapHandlerEntry())
	*contextAt(ppn) = cx
}

/// ZeroA0 clears the a0 register (x[10]) of the trap context at ppn, used
/// so a forked child's first return from its syscall trap observes fork()
/// returning 0.
func ZeroA0(ppn mem.Ppn_t) {
	contextAt(ppn).X[10] = 0
}
