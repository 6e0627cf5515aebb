// Package fdops declares the operations a file descriptor backend must
// implement. Console and the D_STAT/D_PROF devices are the only backends
// this kernel has; there is no filesystem.
package fdops

import "defs"

/// Fdops_i is implemented by every device backing a file descriptor.
type Fdops_i interface {
	/// Read copies into dst starting at the device's current offset and
	/// returns the number of bytes read, or a negative Err_t.
	Read(dst []uint8) (int, defs.Err_t)
	/// Write copies src to the device and returns the number of bytes
	/// written, or a negative Err_t.
	Write(src []uint8) (int, defs.Err_t)
	/// Close releases the backend's resources.
	Close() defs.Err_t
	/// Reopen is called by Copyfd when duplicating the descriptor (e.g. on
	/// fork); most backends are stateless here and just return 0.
	Reopen() defs.Err_t
}
