package mem

/// Sv39 virtual memory layout. TRAMPOLINE sits in the topmost page of the
/// 39-bit address space (sign-extended, so this is also the topmost page
/// of the full 64-bit address as the hardware sees it); TRAP_CONTEXT is
/// the page directly below it. Both are mapped outside any region.
/// TRAMPOLINE has the same VPN and the same PPN in every address space;
/// TRAP_CONTEXT has the same VPN in every user address space, each
/// backed by its own frame.
const (
	TRAMPOLINE        Va_t = Va_t(^uint64(0) - uint64(PGSIZE) + 1) /// 0xffff_ffff_ffff_f000
	TRAP_CONTEXT      Va_t = TRAMPOLINE - Va_t(PGSIZE)
	USER_STACK_SIZE        = 2 * PGSIZE
	KERNEL_STACK_SIZE      = 2 * PGSIZE
	MEMORY_END        Pa_t = 0x88000000 /// end of physical RAM this board reports
)

/// KERNEL_STACK_GAP separates one process's kernel stack from the next in
/// the kernel address space, so an overflowing stack faults instead of
/// silently corrupting its neighbor.
const KERNEL_STACK_GAP = PGSIZE

/// Kernelstack_position returns the [bottom, top) virtual address range of
/// the app_id'th kernel stack below TRAMPOLINE.
func Kernelstack_position(app_id int) (Va_t, Va_t) {
	top := TRAMPOLINE - Va_t(app_id)*Va_t(KERNEL_STACK_SIZE+KERNEL_STACK_GAP)
	bottom := top - Va_t(KERNEL_STACK_SIZE)
	return bottom, top
}
