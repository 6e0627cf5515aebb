// Package kmain is the composition root: the one place that wires every
// hardware-seam hook variable exposed by trap, sbi, vm, and proc to a
// concrete implementation and then runs the boot sequence spec.md §6
// describes — zero BSS (nothing to do in a hosted Go binary), kernel
// heap (the Go runtime's), frame allocator, kernel page table + SATP
// switch, trap vector, timer interrupt, initproc, scheduler loop.
//
// None of the hook implementations themselves belong here: they are
// machine code (`csrr`, `csrw`, `ecall`, `sret`, the trampoline's
// alltraps/restore stubs, __switch) that this retrieval has no assembly
// for, exactly as biscuit's own low-level entry points are. Board wraps
// them so Boot never has to know whether it is linked against the real
// thing or a test double.
package kmain

import (
	"fmt"

	"loader"
	"mem"
	"proc"
	"sbi"
	"scall"
	"trap"
	"vm"
)

/// Board_i collects every privileged operation this kernel cannot express
/// in portable Go: CSR access, the ecall trap, the trampoline jump, and
/// the context-switch routine. A real boot links Boot against an
/// implementation backed by assembly; a hosted test links it against a
/// software model that never actually leaves Go.
type Board_i interface {
	ReadScause() (code uint64, isInterrupt bool)
	ReadStval() uint64
	WriteStvec(handler uint64, direct bool)
	EnableTimerInterrupt()
	SetNextTimerTrigger()
	WriteSatp(satp uint64)
	Ecall(eid, arg0, arg1, arg2 uint64) uint64
	Swtch(save, load *proc.TaskContext_t)
	JumpToRestore(trapContextVa, userSatp uint64)
	TrampolinePpn() mem.Ppn_t
	TrapHandlerEntry() uint64
}

/// Config describes the physical memory this boot owns: [Low, High) is
/// the whole RAM window the board reports (spec.md §6's board
/// description), of which [Low, KernelEnd) is already occupied by the
/// loaded kernel image (ekernel in the original) and [KernelEnd, High) is
/// free for the frame allocator.
type Config struct {
	Low       mem.Pa_t
	KernelEnd mem.Pa_t
	High      mem.Pa_t // normally mem.MEMORY_END
}

/// Boot wires board into every hook variable the rest of the kernel
/// exposes, brings up the frame allocator and kernel address space, and
/// enters the scheduler with initElf registered as "init" and running.
/// It never returns: RunProcesses loops until the board shuts down (see
/// proc.ExitCurrentAndRunNext on pid 0).
func Boot(board Board_i, cfg Config, initElf []uint8) {
	fmt.Printf("[kernel] hello\n")

	installHooks(board)

	low := cfg.Low.Floor()
	high := cfg.High.Ceil()
	kernelEnd := cfg.KernelEnd.Ceil()
	pages := make([]*mem.Pg_t, int(high-kernelEnd))
	for i := range pages {
		pages[i] = &mem.Pg_t{}
	}
	mem.Frames.Init(kernelEnd, high, pages)
	fmt.Printf("[kernel] frame allocator armed: %d frames\n", len(pages))

	sections := kernelSections(low, kernelEnd, high)
	vm.SetTrampoline(board.TrampolinePpn())
	kvm := vm.NewKernel(sections)
	vm.SetKernelVm(kvm)
	kvm.ApplySatpAndFlushTlb()
	fmt.Printf("[kernel] kernel address space active\n")

	trap.Init()
	trap.EnableTimerInterrupt()
	trap.SetNextTimerTrigger()
	fmt.Printf("[kernel] trap vector and timer armed\n")

	loader.Register("init", initElf)
	if err := proc.AddInitproc(initElf); err != 0 {
		panic(fmt.Sprintf("add initproc: %d", err))
	}
	fmt.Printf("[kernel] initproc added, entering scheduler\n")

	proc.RunProcesses()
}

// installHooks binds the package-level hook vars this kernel's packages
// declare, except stats.Rdcycle (unused while stats.Timing is off) and
// trap's kernel trap-vector address (trap.SetTrapFromKernelAddr), which
// no Board_i method supplies. Most forward straight to a Board_i method; a few (the ones
// proc and trap can answer about their own state) are closures over
// this package's wiring instead.
func installHooks(board Board_i) {
	trap.ReadScause = board.ReadScause
	trap.ReadStval = board.ReadStval
	trap.WriteStvec = board.WriteStvec
	trap.EnableTimerInterrupt = board.EnableTimerInterrupt
	trap.SetNextTimerTrigger = board.SetNextTimerTrigger
	trap.Syscall = scall.Dispatch
	trap.CurrentTrapContext = func() *trap.TrapContext_t {
		return trap.ContextAt(proc.CurrentTrapContextPpn())
	}
	trap.CurrentUserToken = proc.CurrentUserToken
	trap.ExitCurrentAndRunNext = proc.ExitCurrentAndRunNext
	trap.SuspendCurrentAndRunNext = proc.SuspendCurrentAndRunNext
	trap.AcctTrapEnter = proc.AcctTrapEnter
	trap.AcctTrapExit = proc.AcctTrapExit
	trap.CurrentKernelSatp = currentKernelSatp
	trap.TrapHandlerEntry = board.TrapHandlerEntry
	trap.SetJumpToRestore(board.JumpToRestore)

	vm.WriteSatp = board.WriteSatp

	sbi.Ecall = board.Ecall

	proc.Swtch = board.Swtch
	proc.TrapRetTrampolineAddr = func() uint64 { return uint64(mem.TRAMPOLINE) }
}

func currentKernelSatp() uint64 {
	v := vm.CurrentKernelVm()
	if v == nil {
		return 0
	}
	return v.Pt.Token()
}

// kernelSections lays out the identity-mapped kernel address space: the
// image occupies [low, kernelEnd) split into text/rodata/data+bss by
// even thirds (this hosted build links no real kernel ELF, so there are
// no linker-provided section symbols to read), and [kernelEnd, high) is
// the physmem/MMIO window spec.md §6 requires mapped R|W.
func kernelSections(low, kernelEnd, high mem.Ppn_t) []vm.Sectioninfo_t {
	span := kernelEnd - low
	third := span / 3
	textEnd := low + third
	rodataEnd := textEnd + third
	ppnVa := func(ppn mem.Ppn_t) mem.Va_t { return mem.MkVa(uint64(ppn.Pa())) }
	return []vm.Sectioninfo_t{
		{Start: ppnVa(low), End: ppnVa(textEnd), Perm: mem.PTE_R | mem.PTE_X},
		{Start: ppnVa(textEnd), End: ppnVa(rodataEnd), Perm: mem.PTE_R},
		{Start: ppnVa(rodataEnd), End: ppnVa(kernelEnd), Perm: mem.PTE_R | mem.PTE_W},
		{Start: ppnVa(kernelEnd), End: ppnVa(high), Perm: mem.PTE_R | mem.PTE_W},
	}
}
