// Package vm implements the region and address-space abstractions that sit
// on top of mem's page tables and frame allocator.
package vm

import "mem"

/// Regionkind_t distinguishes the two region variants this kernel has.
/// Regions are a closed sum type, not a dynamically-dispatched interface:
/// there are exactly two shapes (identity-mapped kernel memory and
/// frame-backed user memory) and every operation switches on Kind rather
/// than calling through a vtable.
type Regionkind_t int

const (
	KERNEL_REGION Regionkind_t = iota /// identity map, owns no frames
	LAZY_REGION                       /// eagerly frame-backed per VPN despite the name
)

/// Pagestate_t records the state of one VPN inside a LazyRegion.
type Pagestate_t int

const (
	PAGE_FREE   Pagestate_t = iota /// not yet backed by a frame
	PAGE_FRAMED                    /// backed by an exclusively-owned frame
	PAGE_COW                       /// declared, never produced: no fork-time page sharing in this kernel
)

/// Region_t is one contiguous VPN range of an address space.
type Region_t struct {
	Kind  Regionkind_t
	Start mem.Vpn_t
	End   mem.Vpn_t /// exclusive
	Perm  uint8      /// PTE_R|PTE_W|PTE_X|PTE_U, PTE_V added by mem.Mkpte
	// pages is populated only for LAZY_REGION; a KERNEL_REGION maps vpn to
	// the physical page number equal to vpn, so it needs no bookkeeping.
	pages map[mem.Vpn_t]Pagestate_t
	frame map[mem.Vpn_t]mem.Ppn_t
}

/// Mkkernelregion builds a KERNEL_REGION spanning [start, end) with perm.
func Mkkernelregion(start, end mem.Va_t, perm uint8) *Region_t {
	return &Region_t{Kind: KERNEL_REGION, Start: start.Floor(), End: end.Ceil(), Perm: perm}
}

/// Mklazyregion builds a LAZY_REGION spanning [start, end) with perm.
func Mklazyregion(start, end mem.Va_t, perm uint8) *Region_t {
	return &Region_t{
		Kind:  LAZY_REGION,
		Start: start.Floor(),
		End:   end.Ceil(),
		Perm:  perm,
		pages: make(map[mem.Vpn_t]Pagestate_t),
		frame: make(map[mem.Vpn_t]mem.Ppn_t),
	}
}

/// Map installs every VPN in the region into pt.
func (r *Region_t) Map(pt *mem.Pagetable_t) {
	for v := r.Start; v < r.End; v++ {
		switch r.Kind {
		case KERNEL_REGION:
			pt.Map(v, mem.Ppn_t(v), r.Perm)
		case LAZY_REGION:
			ppn, ok := mem.Frames.Alloc()
			if !ok {
				panic("oom mapping region")
			}
			r.pages[v] = PAGE_FRAMED
			r.frame[v] = ppn
			pt.Map(v, ppn, r.Perm)
		}
	}
}

/// Unmap removes every VPN in the region from pt and, for a LAZY_REGION,
/// frees its frames.
func (r *Region_t) Unmap(pt *mem.Pagetable_t) {
	for v := r.Start; v < r.End; v++ {
		if r.Kind == LAZY_REGION {
			if ppn, ok := r.frame[v]; ok {
				mem.Frames.Dealloc(ppn)
				delete(r.frame, v)
				delete(r.pages, v)
			}
		}
		pt.Unmap(v)
	}
}

/// CopyData writes data into the region starting at its first VPN,
/// page-by-page, through pt. The region must already be mapped. A BSS tail
/// (data shorter than the region) is left zero, since frames are
/// zero-filled on allocation.
func (r *Region_t) CopyData(pt *mem.Pagetable_t, data []uint8) {
	vpn := r.Start
	off := 0
	for off < len(data) {
		pte, ok := pt.Translate(vpn)
		if !ok {
			panic("copy_data: vpn not mapped")
		}
		pg := mem.Frames.Getpg(pte.Ppn())
		end := off + mem.PGSIZE
		if end > len(data) {
			end = len(data)
		}
		copy(mem.Pg2bytes(pg)[:], data[off:end])
		off = end
		vpn++
	}
}

/// Extend grows the region to newEnd, mapping the newly covered VPNs.
func (r *Region_t) Extend(pt *mem.Pagetable_t, newEnd mem.Vpn_t) {
	for v := r.End; v < newEnd; v++ {
		switch r.Kind {
		case KERNEL_REGION:
			pt.Map(v, mem.Ppn_t(v), r.Perm)
		case LAZY_REGION:
			ppn, ok := mem.Frames.Alloc()
			if !ok {
				panic("oom extending region")
			}
			r.pages[v] = PAGE_FRAMED
			r.frame[v] = ppn
			pt.Map(v, ppn, r.Perm)
		}
	}
	r.End = newEnd
}

/// Shrink reduces the region to newEnd, unmapping and freeing the VPNs
/// dropped.
func (r *Region_t) Shrink(pt *mem.Pagetable_t, newEnd mem.Vpn_t) {
	for v := newEnd; v < r.End; v++ {
		if r.Kind == LAZY_REGION {
			if ppn, ok := r.frame[v]; ok {
				mem.Frames.Dealloc(ppn)
				delete(r.frame, v)
				delete(r.pages, v)
			}
		}
		pt.Unmap(v)
	}
	r.End = newEnd
}

/// ContainsVpn reports whether vpn lies within [Start, End).
func (r *Region_t) ContainsVpn(vpn mem.Vpn_t) bool {
	return r.Start <= vpn && vpn < r.End
}
