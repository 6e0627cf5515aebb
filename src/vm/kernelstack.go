package vm

import "mem"

/// Kernelstack_t is a per-process lazy region mapped into the kernel
/// address space, with a one-page guard gap separating it from its
/// neighbors so an overflowing stack faults instead of corrupting another
/// process's stack.
type Kernelstack_t struct {
	pid int
}

// kernelVm is the single kernel address space every Kernelstack_t maps
// itself into; set once by kmain before any process is created.
var kernelVm *Vm_t

/// SetKernelVm records the kernel address space for kernel-stack mapping.
func SetKernelVm(vm *Vm_t) {
	kernelVm = vm
}

/// CurrentKernelVm returns the kernel address space SetKernelVm recorded,
/// or nil before boot has set one.
func CurrentKernelVm() *Vm_t {
	return kernelVm
}

/// Mkkernelstack maps a new kernel stack for pid into the kernel address
/// space and returns it.
func Mkkernelstack(pid int) *Kernelstack_t {
	bottom, top := mem.Kernelstack_position(pid)
	kernelVm.RegionAdd(Mklazyregion(bottom, top, mem.PTE_R|mem.PTE_W), nil)
	return &Kernelstack_t{pid: pid}
}

/// Top returns the initial stack pointer for this kernel stack (one past
/// its top byte).
func (ks *Kernelstack_t) Top() mem.Va_t {
	_, top := mem.Kernelstack_position(ks.pid)
	return top
}

/// Drop unmaps this kernel stack from the kernel address space, freeing
/// its frames. Call exactly once, when the owning process is reaped.
func (ks *Kernelstack_t) Drop() {
	bottom, _ := mem.Kernelstack_position(ks.pid)
	kernelVm.RegionDeleteByStart(bottom.Floor())
}
