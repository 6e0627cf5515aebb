// Package fs holds the block-device abstraction a filesystem would layer
// on top of. No filesystem is implemented; this is the stub interface a
// block driver and buffer cache would plug into.
package fs

import "mem"

// BSIZE is the size of a disk block in bytes.
const BSIZE = 4096

/// Blockmem_i abstracts page allocation for block buffers.
type Blockmem_i interface {
	Alloc() (mem.Pa_t, *mem.Bytepg_t, bool)
	Free(mem.Pa_t)
	Refup(mem.Pa_t)
}

/// Bdevcmd_t enumerates disk request types.
type Bdevcmd_t uint

const (
	BDEV_WRITE Bdevcmd_t = 1 /// write a block
	BDEV_READ  Bdevcmd_t = 2 /// read a block
	BDEV_FLUSH Bdevcmd_t = 3 /// flush outstanding writes
)

/// Bdev_req_t describes a single block-device request.
type Bdev_req_t struct {
	Cmd   Bdevcmd_t
	Block int
	Data  *mem.Bytepg_t
	AckCh chan bool
}

/// MkRequest allocates a new block request structure.
func MkRequest(block int, data *mem.Bytepg_t, cmd Bdevcmd_t) *Bdev_req_t {
	return &Bdev_req_t{Cmd: cmd, Block: block, Data: data, AckCh: make(chan bool)}
}

/// Disk_i represents a physical disk a block driver starts requests
/// against. No implementation is wired up; this kernel has no storage
/// stack, only the trait the spec reserves a slot for.
type Disk_i interface {
	Start(*Bdev_req_t) bool
	Stats() string
}
