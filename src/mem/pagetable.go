package mem

import "unsafe"

/// Pagetable_t is a three-level Sv39 page table. frames records every
/// intermediate page-table page this table allocated itself (not leaf data
/// pages, which belong to the region that mapped them) so they can be
/// walked or torn down with the table.
type Pagetable_t struct {
	root   Ppn_t
	frames []Ppn_t
}

/// Mkpagetable allocates a fresh root page and returns a page table backed
/// by it.
func Mkpagetable() *Pagetable_t {
	root, ok := Frames.Alloc()
	if !ok {
		panic("oom allocating root page table")
	}
	return &Pagetable_t{root: root, frames: []Ppn_t{root}}
}

/// Frompagetable reconstructs a page table view from a SATP token. The
/// returned table does not own any frames: it is used to walk an address
/// space that another Pagetable_t already owns (e.g. the active user
/// table during a trap).
func Frompagetable(satp uint64) *Pagetable_t {
	return &Pagetable_t{root: Ppn_t(satp & ((1 << 44) - 1))}
}

/// Root returns the physical page number of this table's root page.
func (pt *Pagetable_t) Root() Ppn_t {
	return pt.root
}

/// Token returns the SATP value selecting Sv39 mode with this table's root.
func (pt *Pagetable_t) Token() uint64 {
	return 8<<60 | uint64(pt.root)
}

func pteslice(ppn Ppn_t) *[512]Pte_t {
	pg := Frames.Getpg(ppn)
	return (*[512]Pte_t)(unsafe.Pointer(pg))
}

/// findPte walks the table to the leaf PTE for vpn, optionally allocating
/// intermediate levels. It returns nil if create is false and an
/// intermediate level is missing.
func (pt *Pagetable_t) findPte(vpn Vpn_t, create bool) *Pte_t {
	ppn := pt.root
	idx := vpn.Indexes()
	for i := 0; i < 3; i++ {
		ptes := pteslice(ppn)
		pte := &ptes[idx[i]]
		if i == 2 {
			return pte
		}
		if !pte.Valid() {
			if !create {
				return nil
			}
			nf, ok := Frames.Alloc()
			if !ok {
				panic("oom allocating page table level")
			}
			*pte = Mkpte(nf, PTE_V)
			pt.frames = append(pt.frames, nf)
		}
		ppn = pte.Ppn()
	}
	return nil
}

/// Map installs a leaf mapping vpn -> ppn with flags. It panics if vpn is
/// already mapped: remapping a live translation without an explicit Unmap
/// first is a kernel bug (DoubleMap).
func (pt *Pagetable_t) Map(vpn Vpn_t, ppn Ppn_t, flags uint8) {
	pte := pt.findPte(vpn, true)
	if pte.Valid() {
		panic("vpn is mapped before mapping")
	}
	*pte = Mkpte(ppn, flags)
}

/// Unmap clears the leaf mapping for vpn. It panics if vpn was not mapped
/// (UnmapUnmapped).
func (pt *Pagetable_t) Unmap(vpn Vpn_t) {
	pte := pt.findPte(vpn, false)
	if pte == nil || !pte.Valid() {
		panic("vpn is not mapped before unmapping")
	}
	*pte = Pte_t(0)
}

/// Translate returns the PTE currently mapping vpn, if any.
func (pt *Pagetable_t) Translate(vpn Vpn_t) (Pte_t, bool) {
	pte := pt.findPte(vpn, false)
	if pte == nil || !pte.Valid() {
		return 0, false
	}
	return *pte, true
}

/// TranslateVa resolves a full virtual address to its physical address
/// through this table, honoring the page offset.
func (pt *Pagetable_t) TranslateVa(va Va_t) (Pa_t, bool) {
	pte, ok := pt.Translate(va.Floor())
	if !ok {
		return 0, false
	}
	return Pa_t(pte.Ppn().Pa()) + Pa_t(va.Pageoff()), true
}
