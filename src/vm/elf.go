package vm

import (
	"defs"
	"mem"
	"util"
)

/// ELF64 constants this kernel's loader understands. Only PT_LOAD segments
/// are honored; everything else (PT_DYNAMIC, PT_INTERP, notes, ...) is
/// ignored.
const (
	elfMagic0   = 0x7f
	elfMagic1   = 'E'
	elfMagic2   = 'L'
	elfMagic3   = 'F'
	ptLoad      = 1
	pfX         = 1
	pfW         = 2
	pfR         = 4
	ehEntryOff  = 24
	ehPhoffOff  = 32
	ehPhentsz   = 54
	ehPhnumOff  = 56
	phEntrySize = 56
)

/// FromElf parses an ELF64 LE RISC-V image, builds the resulting address
/// space (trampoline, one LazyRegion per PT_LOAD segment, guard page, user
/// stack, zero-length heap, trap-context page), and returns it along with
/// the initial user stack pointer and the entry point.
func FromElf(data []uint8) (*Vm_t, mem.Va_t, mem.Va_t, defs.Err_t) {
	if len(data) < 64 || data[0] != elfMagic0 || data[1] != elfMagic1 ||
		data[2] != elfMagic2 || data[3] != elfMagic3 {
		return nil, 0, 0, defs.EINVAL
	}
	entry := mem.MkVa(uint64(readLE(data, 8, ehEntryOff)))
	phoff := readLE(data, 8, ehPhoffOff)
	phentsize := readLE(data, 2, ehPhentsz)
	phnum := readLE(data, 2, ehPhnumOff)
	if phentsize != phEntrySize {
		return nil, 0, 0, defs.EINVAL
	}

	vm := Mkvm()
	vm.MapTrampoline()

	maxEndVpn := mem.Vpn_t(0)
	for i := 0; i < phnum; i++ {
		base := phoff + i*phentsize
		if base+phEntrySize > len(data) {
			return nil, 0, 0, defs.EINVAL
		}
		ptype := readLE(data, 4, base+0)
		if ptype != ptLoad {
			continue
		}
		flags := readLE(data, 4, base+4)
		offset := readLE(data, 8, base+8)
		vaddr := readLE(data, 8, base+16)
		filesz := readLE(data, 8, base+32)
		memsz := readLE(data, 8, base+40)

		perm := mem.PTE_U
		if flags&pfR != 0 {
			perm |= mem.PTE_R
		}
		if flags&pfW != 0 {
			perm |= mem.PTE_W
		}
		if flags&pfX != 0 {
			perm |= mem.PTE_X
		}

		start := mem.MkVa(uint64(vaddr))
		end := mem.MkVa(uint64(vaddr + memsz))
		region := Mklazyregion(start, end, perm)
		var segdata []uint8
		if filesz > 0 {
			if offset+filesz > len(data) {
				return nil, 0, 0, defs.EINVAL
			}
			segdata = data[offset : offset+filesz]
		}
		if region.End > maxEndVpn {
			maxEndVpn = region.End
		}
		vm.RegionAdd(region, segdata)
	}

	userStackBottom := maxEndVpn.Va() + mem.Va_t(mem.PGSIZE) // one guard page
	userStackTop := userStackBottom + mem.Va_t(mem.USER_STACK_SIZE)
	vm.RegionAdd(Mklazyregion(userStackBottom, userStackTop, mem.PTE_U|mem.PTE_R|mem.PTE_W), nil)
	// zero-length heap region at the stack top, grown by sbrk
	heap := Mklazyregion(userStackTop, userStackTop, mem.PTE_U|mem.PTE_R|mem.PTE_W)
	vm.RegionAdd(heap, nil)
	vm.HeapRegion = heap
	vm.HeapBase = userStackTop

	ppn, ok := mem.Frames.Alloc()
	if !ok {
		return nil, 0, 0, defs.ENOMEM
	}
	vm.Pt.Map(mem.TRAP_CONTEXT.Floor(), ppn, mem.PTE_R|mem.PTE_W)
	vm.TrapContextPpn = ppn

	return vm, userStackTop, entry, 0
}

func readLE(data []uint8, n, off int) int {
	return util.Readn(data, n, off)
}
