package vm

import (
	"encoding/binary"
	"testing"

	"defs"
	"mem"
)

// freshFrames rearms the frame allocator with n fresh pages, mirroring
// mem's own test helper since vm builds address spaces directly against
// the package-level mem.Frames singleton.
func freshFrames(n int) {
	pages := make([]*mem.Pg_t, n)
	for i := range pages {
		pages[i] = &mem.Pg_t{}
	}
	mem.Frames.Init(0, mem.Ppn_t(n), pages)
}

func stubArch() {
	WriteSatp = func(uint64) {}
	SetTrampoline(0)
}

func TestMkvmStartsEmpty(t *testing.T) {
	freshFrames(64)
	stubArch()
	v := Mkvm()
	if len(v.Regions) != 0 {
		t.Fatalf("fresh Vm_t has %d regions, want 0", len(v.Regions))
	}
}

func TestRegionAddMapsAndCopiesData(t *testing.T) {
	freshFrames(64)
	stubArch()
	v := Mkvm()
	v.MapTrampoline()

	start := mem.MkVa(0)
	end := mem.MkVa(uint64(mem.PGSIZE))
	r := Mklazyregion(start, end, mem.PTE_U|mem.PTE_R|mem.PTE_W)
	data := []uint8{1, 2, 3, 4}
	v.RegionAdd(r, data)

	pte, ok := v.Pt.Translate(start.Floor())
	if !ok {
		t.Fatal("expected region's vpn to be mapped")
	}
	pg := mem.Pg2bytes(mem.Frames.Getpg(pte.Ppn()))
	for i, want := range data {
		if pg[i] != want {
			t.Errorf("byte %d = %d, want %d", i, pg[i], want)
		}
	}
}

func TestSbrkGrowsAndShrinksHeap(t *testing.T) {
	freshFrames(64)
	stubArch()
	v := Mkvm()
	v.MapTrampoline()
	base := mem.MkVa(0)
	v.HeapRegion = Mklazyregion(base, base, mem.PTE_U|mem.PTE_R|mem.PTE_W)
	v.HeapBase = base

	old, err := v.Sbrk(mem.PGSIZE)
	if err != 0 {
		t.Fatalf("grow: err = %d", err)
	}
	if old != base {
		t.Fatalf("grow: old break = %v, want %v", old, base)
	}
	if v.HeapRegion.End != base.Ceil()+1 {
		t.Fatalf("grow: heap end = %d, want %d", v.HeapRegion.End, base.Ceil()+1)
	}

	if _, err := v.Sbrk(-mem.PGSIZE); err != 0 {
		t.Fatalf("shrink: err = %d", err)
	}
	if v.HeapRegion.End != base.Ceil() {
		t.Fatalf("shrink: heap end = %d, want %d", v.HeapRegion.End, base.Ceil())
	}
}

func TestSbrkRejectsNegativeBreak(t *testing.T) {
	freshFrames(64)
	stubArch()
	v := Mkvm()
	base := mem.MkVa(uint64(mem.PGSIZE))
	v.HeapRegion = Mklazyregion(base, base, mem.PTE_U|mem.PTE_R|mem.PTE_W)
	v.HeapBase = base

	if _, err := v.Sbrk(-2 * mem.PGSIZE); err != defs.EINVAL {
		t.Fatalf("expected EINVAL shrinking below HeapBase, got %d", err)
	}
}

func TestMunmapUnmapsFromCallersOwnAddressSpace(t *testing.T) {
	// This is the §9 redesign: munmap must act on the caller's own Vm_t,
	// never a separate kernel address space.
	freshFrames(64)
	stubArch()
	v := Mkvm()
	v.MapTrampoline()
	start := mem.MkVa(0)
	end := mem.MkVa(uint64(2 * mem.PGSIZE))
	r := Mklazyregion(start, end, mem.PTE_U|mem.PTE_R|mem.PTE_W)
	v.RegionAdd(r, nil)

	if err := v.Munmap(start, 2*mem.PGSIZE); err != 0 {
		t.Fatalf("munmap: err = %d", err)
	}
	if _, ok := v.Pt.Translate(start.Floor()); ok {
		t.Fatal("expected vpn to be unmapped after munmap")
	}
}

func TestMunmapRejectsUnalignedAddr(t *testing.T) {
	freshFrames(64)
	stubArch()
	v := Mkvm()
	if err := v.Munmap(mem.MkVa(1), mem.PGSIZE); err != defs.EINVAL {
		t.Fatalf("expected EINVAL for unaligned addr, got %d", err)
	}
}

func TestFromElfRejectsBadMagic(t *testing.T) {
	freshFrames(64)
	stubArch()
	data := make([]uint8, 128)
	if _, _, _, err := FromElf(data); err == 0 {
		t.Fatal("expected error for all-zero (bad magic) image")
	}
}

func TestFromElfLoadsOneLoadSegment(t *testing.T) {
	freshFrames(256)
	stubArch()
	data := buildMinimalElf(t, []uint8{0xde, 0xad, 0xbe, 0xef})

	v, userSp, entry, err := FromElf(data)
	if err != 0 {
		t.Fatalf("FromElf: err = %d", err)
	}
	if entry != mem.MkVa(0x1000) {
		t.Fatalf("entry = %v, want 0x1000", entry)
	}
	if userSp == 0 {
		t.Fatal("expected non-zero user stack pointer")
	}
	if v.HeapRegion == nil || v.HeapRegion.Start != v.HeapRegion.End {
		t.Fatal("expected zero-length heap region at load time")
	}

	pte, ok := v.Pt.Translate(mem.MkVa(0x1000).Floor())
	if !ok {
		t.Fatal("expected PT_LOAD segment vpn to be mapped")
	}
	pg := mem.Pg2bytes(mem.Frames.Getpg(pte.Ppn()))
	want := []uint8{0xde, 0xad, 0xbe, 0xef}
	for i, b := range want {
		if pg[i] != b {
			t.Errorf("loaded byte %d = %#x, want %#x", i, pg[i], b)
		}
	}
}

func TestFromExistedUserDeepCopiesLazyRegions(t *testing.T) {
	freshFrames(256)
	stubArch()
	src := Mkvm()
	src.MapTrampoline()
	start := mem.MkVa(0)
	end := mem.MkVa(uint64(mem.PGSIZE))
	r := Mklazyregion(start, end, mem.PTE_U|mem.PTE_R|mem.PTE_W)
	src.RegionAdd(r, []uint8{7, 7, 7})

	dst := FromExistedUser(src)

	srcPte, _ := src.Pt.Translate(start.Floor())
	dstPte, ok := dst.Pt.Translate(start.Floor())
	if !ok {
		t.Fatal("expected destination vpn to be mapped")
	}
	if srcPte.Ppn() == dstPte.Ppn() {
		t.Fatal("expected fork to allocate a distinct frame, not share one")
	}
	srcPg := mem.Pg2bytes(mem.Frames.Getpg(srcPte.Ppn()))
	dstPg := mem.Pg2bytes(mem.Frames.Getpg(dstPte.Ppn()))
	if srcPg[0] != dstPg[0] || dstPg[0] != 7 {
		t.Fatalf("expected copied byte 7, got src=%d dst=%d", srcPg[0], dstPg[0])
	}

	// Mutating the child must never affect the parent: no page sharing.
	dstPg[0] = 9
	if srcPg[0] == 9 {
		t.Fatal("child write leaked into parent frame: pages are aliased")
	}
}

// buildMinimalElf assembles a tiny ELF64 LE image with one PT_LOAD segment
// covering vaddr 0x1000 with the given file contents, enough for FromElf's
// header/program-header walk.
func buildMinimalElf(t *testing.T, segdata []uint8) []uint8 {
	t.Helper()
	const ehsize = 64
	const phoff = ehsize
	const phentsize = 56
	buf := make([]uint8, phoff+phentsize+len(segdata))
	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	binary.LittleEndian.PutUint64(buf[24:], 0x1000)          // e_entry
	binary.LittleEndian.PutUint64(buf[32:], uint64(phoff))   // e_phoff
	binary.LittleEndian.PutUint16(buf[54:], uint16(phentsize)) // e_phentsize
	binary.LittleEndian.PutUint16(buf[56:], 1)                // e_phnum

	ph := buf[phoff:]
	binary.LittleEndian.PutUint32(ph[0:], 1)                         // p_type = PT_LOAD
	binary.LittleEndian.PutUint32(ph[4:], 4|2)                        // p_flags = R|W
	binary.LittleEndian.PutUint64(ph[8:], uint64(phoff+phentsize))    // p_offset
	binary.LittleEndian.PutUint64(ph[16:], 0x1000)                    // p_vaddr
	binary.LittleEndian.PutUint64(ph[32:], uint64(len(segdata)))      // p_filesz
	binary.LittleEndian.PutUint64(ph[40:], uint64(len(segdata)))      // p_memsz
	copy(buf[phoff+phentsize:], segdata)
	return buf
}
