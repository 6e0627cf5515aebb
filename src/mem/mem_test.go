package mem

import "testing"

func freshFrames(n int) {
	pages := make([]*Pg_t, n)
	for i := range pages {
		pages[i] = &Pg_t{}
	}
	Frames.Init(0, Ppn_t(n), pages)
}

func TestVaRoundTrip(t *testing.T) {
	specs := []struct {
		in        uint64
		wantFloor Vpn_t
		wantCeil  Vpn_t
	}{
		{0, 0, 0},
		{1, 0, 1},
		{uint64(PGSIZE) - 1, 0, 1},
		{uint64(PGSIZE), 1, 1},
		{uint64(PGSIZE) + 1, 1, 2},
	}
	for i, s := range specs {
		va := MkVa(s.in)
		if got := va.Floor(); got != s.wantFloor {
			t.Errorf("[spec %d] Floor() = %d, want %d", i, got, s.wantFloor)
		}
		if got := va.Ceil(); got != s.wantCeil {
			t.Errorf("[spec %d] Ceil() = %d, want %d", i, got, s.wantCeil)
		}
	}
}

func TestVaSignExtend(t *testing.T) {
	// bit VA_WIDTH-1 set must sign-extend through bits 63:39.
	v := MkVa(uint64(1) << (VA_WIDTH - 1))
	if uint64(v)>>VA_WIDTH == 0 {
		t.Fatalf("expected sign extension above bit %d, got %#x", VA_WIDTH-1, v)
	}
}

func TestVpnIndexes(t *testing.T) {
	// idx[0]=1, idx[1]=2, idx[2]=3
	raw := uint64(1)<<18 | uint64(2)<<9 | uint64(3)
	idx := Vpn_t(raw).Indexes()
	want := [3]int{1, 2, 3}
	if idx != want {
		t.Fatalf("Indexes() = %v, want %v", idx, want)
	}
}

func TestPteRoundTrip(t *testing.T) {
	pte := Mkpte(Ppn_t(0x1234), PTE_R|PTE_W)
	if !pte.Valid() {
		t.Fatal("expected V bit set by Mkpte")
	}
	if !pte.Readable() || !pte.Writable() {
		t.Fatal("expected R and W bits set")
	}
	if pte.Executable() {
		t.Fatal("did not expect X bit set")
	}
	if got := pte.Ppn(); got != 0x1234 {
		t.Fatalf("Ppn() = %#x, want %#x", got, 0x1234)
	}
}

func TestPteLeaf(t *testing.T) {
	leaf := Mkpte(1, PTE_R)
	ptr := Mkpte(1, 0)
	if !leaf.Leaf() {
		t.Error("expected R-only PTE to be a leaf")
	}
	if ptr.Leaf() {
		t.Error("expected flagless PTE to not be a leaf")
	}
}

func TestFrameAllocBumpThenRecycle(t *testing.T) {
	freshFrames(4)
	a, ok := Frames.Alloc()
	if !ok || a != 0 {
		t.Fatalf("first alloc = (%d, %v), want (0, true)", a, ok)
	}
	b, ok := Frames.Alloc()
	if !ok || b != 1 {
		t.Fatalf("second alloc = (%d, %v), want (1, true)", b, ok)
	}
	Frames.Dealloc(a)
	// recycled frames come back LIFO, ahead of the bump pointer.
	c, ok := Frames.Alloc()
	if !ok || c != a {
		t.Fatalf("alloc after dealloc = (%d, %v), want (%d, true)", c, ok, a)
	}
}

func TestFrameAllocExhaustion(t *testing.T) {
	freshFrames(2)
	if _, ok := Frames.Alloc(); !ok {
		t.Fatal("expected first alloc to succeed")
	}
	if _, ok := Frames.Alloc(); !ok {
		t.Fatal("expected second alloc to succeed")
	}
	if _, ok := Frames.Alloc(); ok {
		t.Fatal("expected third alloc to fail: allocator should be exhausted")
	}
}

func TestFrameAllocIsZeroFilled(t *testing.T) {
	freshFrames(2)
	ppn, ok := Frames.Alloc()
	if !ok {
		t.Fatal("alloc failed")
	}
	pg := Frames.Getpg(ppn)
	pg[0] = 0xdeadbeef
	Frames.Dealloc(ppn)
	ppn2, ok := Frames.Alloc()
	if !ok || ppn2 != ppn {
		t.Fatalf("expected recycled frame back, got (%d, %v)", ppn2, ok)
	}
	if Frames.Getpg(ppn2)[0] != 0 {
		t.Fatal("expected frame to be zeroed on alloc")
	}
}

func TestFrameDoubleFreePanics(t *testing.T) {
	freshFrames(2)
	ppn, _ := Frames.Alloc()
	Frames.Dealloc(ppn)
	defer func() {
		if recover() == nil {
			t.Fatal("expected double free to panic")
		}
	}()
	Frames.Dealloc(ppn)
}

func TestFrameDeallocNeverAllocatedPanics(t *testing.T) {
	freshFrames(4)
	defer func() {
		if recover() == nil {
			t.Fatal("expected dealloc of a never-allocated frame to panic")
		}
	}()
	Frames.Dealloc(3)
}

func TestPagetableMapUnmapTranslate(t *testing.T) {
	freshFrames(16)
	pt := Mkpagetable()
	data, _ := Frames.Alloc()
	pt.Map(5, data, PTE_R|PTE_W)

	pte, ok := pt.Translate(5)
	if !ok {
		t.Fatal("expected vpn 5 to translate")
	}
	if pte.Ppn() != data {
		t.Fatalf("translated ppn = %d, want %d", pte.Ppn(), data)
	}

	pt.Unmap(5)
	if _, ok := pt.Translate(5); ok {
		t.Fatal("expected vpn 5 to be unmapped")
	}
}

func TestPagetableDoubleMapPanics(t *testing.T) {
	freshFrames(16)
	pt := Mkpagetable()
	data, _ := Frames.Alloc()
	pt.Map(5, data, PTE_R)
	defer func() {
		if recover() == nil {
			t.Fatal("expected remapping a live vpn to panic")
		}
	}()
	pt.Map(5, data, PTE_R)
}

func TestPagetableUnmapUnmappedPanics(t *testing.T) {
	freshFrames(16)
	pt := Mkpagetable()
	defer func() {
		if recover() == nil {
			t.Fatal("expected unmapping an unmapped vpn to panic")
		}
	}()
	pt.Unmap(7)
}

func TestPagetableTokenSelectsSv39(t *testing.T) {
	freshFrames(4)
	pt := Mkpagetable()
	token := pt.Token()
	if token>>60 != 8 {
		t.Fatalf("token mode bits = %#x, want 8", token>>60)
	}
	if Ppn_t(token&((1<<44)-1)) != pt.Root() {
		t.Fatal("token root ppn does not match pt.Root()")
	}
}

func TestPagetableTranslateVaHonorsOffset(t *testing.T) {
	freshFrames(16)
	pt := Mkpagetable()
	data, _ := Frames.Alloc()
	pt.Map(2, data, PTE_R|PTE_W)

	va := MkVa(uint64(2)<<PGSHIFT + 0x123)
	pa, ok := pt.TranslateVa(va)
	if !ok {
		t.Fatal("expected translation to succeed")
	}
	if pa.Pageoff() != 0x123 {
		t.Fatalf("pageoff = %#x, want %#x", pa.Pageoff(), 0x123)
	}
	if pa.Floor() != data {
		t.Fatalf("translated ppn = %d, want %d", pa.Floor(), data)
	}
}

func TestPagetableSpansMultipleLevels(t *testing.T) {
	freshFrames(32)
	pt := Mkpagetable()
	data, _ := Frames.Alloc()
	// vpn with all three indices nonzero forces every intermediate level
	// to be allocated on demand.
	vpn := Vpn_t(1<<18 | 1<<9 | 1)
	pt.Map(vpn, data, PTE_R)
	pte, ok := pt.Translate(vpn)
	if !ok || pte.Ppn() != data {
		t.Fatalf("Translate(%d) = (%v, %v), want (%d, true)", vpn, pte.Ppn(), ok, data)
	}
}
