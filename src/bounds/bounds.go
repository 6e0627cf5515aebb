// Package bounds assigns a resource-admission cost to the kernel's bounded
// copy loops, so a user-controlled length can't make a single syscall walk
// an unbounded amount of memory without checking in with res.
package bounds

/// Bounds_t names a budget token charged against the resource admission
/// system before a bounded loop runs.
type Bounds_t int

const (
	B_ASPACE_T_K2USER_INNER  Bounds_t = iota /// AddressSpace.K2user inner copy loop, one page at a time
	B_ASPACE_T_USER2K_INNER                  /// AddressSpace.User2k inner copy loop, one page at a time
)

/// cost is the resource units each bounded operation is charged, one unit
/// per page touched in the worst case this kernel permits.
var cost = map[Bounds_t]int{
	B_ASPACE_T_K2USER_INNER: 1,
	B_ASPACE_T_USER2K_INNER: 1,
}

/// Bounds returns the resource cost associated with token b.
func Bounds(b Bounds_t) int {
	c, ok := cost[b]
	if !ok {
		panic("unknown bounds token")
	}
	return c
}
