package vm

import (
	"bounds"
	"defs"
	"limits"
	"mem"
	"res"
)

/// Sectioninfo_t describes one linker-provided kernel section for
/// new_kernel: its virtual range and the permission it should carry.
type Sectioninfo_t struct {
	Start mem.Va_t
	End   mem.Va_t
	Perm  uint8
}

/// Vm_t ("address space") owns one page table plus an ordered list of
/// regions. The trampoline page and, for user spaces, the trap-context
/// page are mapped directly into the table and intentionally excluded
/// from Regions: their VPN-to-PPN mapping must never move, unlike an
/// ordinary region's frames.
type Vm_t struct {
	Pt      *mem.Pagetable_t
	Regions []*Region_t

	// TrapContextPpn is the physical page backing TRAP_CONTEXT in this
	// (user) address space. Zero/unset for the kernel address space.
	TrapContextPpn mem.Ppn_t

	// HeapRegion is the zero-length-at-creation region from_elf appends
	// atop the user stack; sbrk grows or shrinks it. Nil for the kernel
	// address space.
	HeapRegion *Region_t
	HeapBase   mem.Va_t
}

/// Sbrk grows or shrinks the heap region by n bytes (n may be negative)
/// and returns the previous break. It returns EINVAL if this address space
/// has no heap region or the new break would fall below HeapBase, and
/// ENOMEM if growing would push this address space past
/// limits.Syslimit.Maxpages. Growing panics if the frame allocator runs
/// out, as every region mapping does.
func (vm *Vm_t) Sbrk(n int) (mem.Va_t, defs.Err_t) {
	if vm.HeapRegion == nil {
		return 0, defs.EINVAL
	}
	oldBreak := vm.HeapRegion.End.Va()
	if int64(oldBreak)+int64(n) < int64(vm.HeapBase) {
		return 0, defs.EINVAL
	}
	newBreak := mem.MkVa(uint64(int64(oldBreak) + int64(n)))
	if newBreak > oldBreak {
		grow := int(newBreak.Ceil()-oldBreak.Ceil())
		if vm.totalPages()+grow > limits.Syslimit.Maxpages {
			return 0, defs.ENOMEM
		}
		vm.HeapRegion.Extend(vm.Pt, newBreak.Ceil())
	} else if newBreak < oldBreak {
		vm.HeapRegion.Shrink(vm.Pt, newBreak.Ceil())
	}
	return oldBreak, 0
}

/// totalPages sums the page span of every region in this address space,
/// the quantity limits.Syslimit.Maxpages bounds.
func (vm *Vm_t) totalPages() int {
	n := 0
	for _, r := range vm.Regions {
		n += int(r.End - r.Start)
	}
	return n
}

var trampolinePpn mem.Ppn_t

/// SetTrampoline records the physical frame holding the trampoline
/// assembly; every subsequent Vm_t maps TRAMPOLINE to this frame.
func SetTrampoline(ppn mem.Ppn_t) {
	trampolinePpn = ppn
}

/// Mkvm allocates a fresh, empty address space with its own root page
/// table.
func Mkvm() *Vm_t {
	return &Vm_t{Pt: mem.Mkpagetable()}
}

/// MapTrampoline maps TRAMPOLINE to the physical trampoline page with
/// R|X (no U), as every address space must before first use.
func (vm *Vm_t) MapTrampoline() {
	vm.Pt.Map(mem.TRAMPOLINE.Floor(), trampolinePpn, mem.PTE_R|mem.PTE_X)
}

/// RegionAdd maps region into this address space and, if data is
/// non-nil, copies it in; it then appends region to Regions.
func (vm *Vm_t) RegionAdd(region *Region_t, data []uint8) {
	region.Map(vm.Pt)
	if data != nil {
		region.CopyData(vm.Pt, data)
	}
	vm.Regions = append(vm.Regions, region)
}

/// RegionDeleteByStart unmaps and removes the region beginning at start,
/// used to tear down a process's kernel stack.
func (vm *Vm_t) RegionDeleteByStart(start mem.Vpn_t) {
	for i, r := range vm.Regions {
		if r.Start == start {
			r.Unmap(vm.Pt)
			vm.Regions = append(vm.Regions[:i], vm.Regions[i+1:]...)
			return
		}
	}
	panic("no region with that start")
}

/// FindRegion returns the region containing vpn, if any.
func (vm *Vm_t) FindRegion(vpn mem.Vpn_t) *Region_t {
	for _, r := range vm.Regions {
		if r.ContainsVpn(vpn) {
			return r
		}
	}
	return nil
}

/// NewKernel builds the kernel address space: the trampoline plus one
/// KernelRegion per linker-provided section (text R|X, rodata R, data/bss/
/// physmem/MMIO R|W).
func NewKernel(sections []Sectioninfo_t) *Vm_t {
	vm := Mkvm()
	vm.MapTrampoline()
	for _, s := range sections {
		vm.RegionAdd(Mkkernelregion(s.Start, s.End, s.Perm), nil)
	}
	return vm
}

/// ApplySatpAndFlushTlb writes this address space's SATP token and
/// flushes the TLB, making it the active translation.
func (vm *Vm_t) ApplySatpAndFlushTlb() {
	writeSatpAndFence(vm.Pt.Token())
}

/// RecycleDataPages clears the region list, dropping every region's
/// frames; the trampoline mapping and the root table survive.
func (vm *Vm_t) RecycleDataPages() {
	for _, r := range vm.Regions {
		r.Unmap(vm.Pt)
	}
	vm.Regions = nil
}

/// FromExistedUser builds a new user address space that deep-copies every
/// LazyRegion of other: for each source VPN a fresh frame is allocated in
/// the destination and the 4 KiB page is copied byte for byte. The
/// trampoline is mapped to the shared trampoline frame. The trap-context
/// page gets a fresh frame, into which other's trap context (if it has
/// one) is copied byte for byte.
func FromExistedUser(other *Vm_t) *Vm_t {
	vm := Mkvm()
	vm.MapTrampoline()

	for _, r := range other.Regions {
		nr := &Region_t{Kind: r.Kind, Start: r.Start, End: r.End, Perm: r.Perm}
		if r.Kind == LAZY_REGION {
			nr.pages = make(map[mem.Vpn_t]Pagestate_t)
			nr.frame = make(map[mem.Vpn_t]mem.Ppn_t)
		}
		vm.RegionAdd(nr, nil)
		if r.Kind != LAZY_REGION {
			continue
		}
		for v := r.Start; v < r.End; v++ {
			srcPte, ok := other.Pt.Translate(v)
			if !ok {
				continue
			}
			dstPte, ok := vm.Pt.Translate(v)
			if !ok {
				panic("from_existed_user: destination vpn not mapped")
			}
			src := mem.Pg2bytes(mem.Frames.Getpg(srcPte.Ppn()))
			dst := mem.Pg2bytes(mem.Frames.Getpg(dstPte.Ppn()))
			copy(dst[:], src[:])
		}
		if r == other.HeapRegion {
			vm.HeapRegion = nr
			vm.HeapBase = other.HeapBase
		}
	}

	ppn, ok := mem.Frames.Alloc()
	if !ok {
		panic("oom copying trap context")
	}
	vm.Pt.Map(mem.TRAP_CONTEXT.Floor(), ppn, mem.PTE_R|mem.PTE_W)
	if other.TrapContextPpn != 0 {
		src := mem.Pg2bytes(mem.Frames.Getpg(other.TrapContextPpn))
		dst := mem.Pg2bytes(mem.Frames.Getpg(ppn))
		copy(dst[:], src[:])
	}
	vm.TrapContextPpn = ppn
	return vm
}

/// Munmap unmaps the page range [addr, addr+length) from this address
/// space, as §9's REDESIGN FLAG corrects: the original implementation
/// unmapped from the kernel address space regardless of caller, which
/// cannot be what a process-scoped munmap means. addr must be page
/// aligned and length non-zero; every page in range must already be
/// mapped, or the whole call fails without partially unmapping.
func (vm *Vm_t) Munmap(addr mem.Va_t, length int) defs.Err_t {
	if !addr.Aligned() {
		return defs.EINVAL
	}
	if length == 0 {
		return defs.EINVAL
	}
	start := addr.Floor()
	end := (addr + mem.Va_t(length)).Ceil()
	for v := start; v < end; v++ {
		if _, ok := vm.Pt.Translate(v); !ok {
			return defs.EINVAL
		}
	}
	for v := start; v < end; v++ {
		r := vm.FindRegion(v)
		if r != nil && r.Kind == LAZY_REGION {
			if ppn, ok := r.frame[v]; ok {
				mem.Frames.Dealloc(ppn)
				delete(r.frame, v)
				delete(r.pages, v)
			}
		}
		vm.Pt.Unmap(v)
	}
	return 0
}

// --- bounded user<->kernel copies, charged against the resource budget ---

/// K2user copies src into this address space's user memory starting at
/// uva. The loop admits one bounds unit per page touched and releases it
/// again once that page's copy lands, so a huge write syscall can't
/// monopolize the hart's copy budget without the resource accountant
/// noticing, while an unrelated syscall running later still sees the
/// budget back at rest.
func (vm *Vm_t) K2user(src []uint8, uva mem.Va_t) defs.Err_t {
	cnt := 0
	for cnt != len(src) {
		unit := bounds.Bounds(bounds.B_ASPACE_T_K2USER_INNER)
		if !res.Resadd_noblock(unit) {
			return defs.ENOMEM
		}
		va := uva + mem.Va_t(cnt)
		pte, ok := vm.Pt.Translate(va.Floor())
		if !ok {
			res.Resdel(unit)
			return defs.EFAULT
		}
		pg := mem.Pg2bytes(mem.Frames.Getpg(pte.Ppn()))
		dst := pg[va.Pageoff():]
		n := copy(dst, src[cnt:])
		cnt += n
		res.Resdel(unit)
	}
	return 0
}

/// User2k copies len(dst) bytes from this address space's user memory
/// starting at uva into dst.
func (vm *Vm_t) User2k(dst []uint8, uva mem.Va_t) defs.Err_t {
	cnt := 0
	for cnt != len(dst) {
		unit := bounds.Bounds(bounds.B_ASPACE_T_USER2K_INNER)
		if !res.Resadd_noblock(unit) {
			return defs.ENOMEM
		}
		va := uva + mem.Va_t(cnt)
		pte, ok := vm.Pt.Translate(va.Floor())
		if !ok {
			res.Resdel(unit)
			return defs.EFAULT
		}
		pg := mem.Pg2bytes(mem.Frames.Getpg(pte.Ppn()))
		src := pg[va.Pageoff():]
		n := copy(dst[cnt:], src)
		cnt += n
		res.Resdel(unit)
	}
	return 0
}

/// UserReadCstr walks the user's page table one byte at a time, reading a
/// NUL-terminated string at uva. Used by exec to read the app name.
func (vm *Vm_t) UserReadCstr(uva mem.Va_t, maxlen int) ([]uint8, defs.Err_t) {
	var out []uint8
	for i := 0; i < maxlen; i++ {
		va := uva + mem.Va_t(i)
		pa, ok := vm.Pt.TranslateVa(va)
		if !ok {
			return nil, defs.EFAULT
		}
		b := mem.Pg2bytes(mem.Frames.Getpg(pa.Floor()))[pa.Pageoff()]
		if b == 0 {
			return out, 0
		}
		out = append(out, b)
	}
	return nil, defs.ENAMETOOLONG
}
