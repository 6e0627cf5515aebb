package defs

/// Syscall numbers recognised by the dispatcher. Values match the RISC-V
/// Sv39 ABI subset this kernel targets, not the full Linux syscall table.
const (
	SYS_OPEN    = 56  /// unimplemented; always fails
	SYS_READ    = 63
	SYS_WRITE   = 64
	SYS_EXIT    = 93
	SYS_YIELD   = 124
	SYS_GET_TIME = 169
	SYS_GETPID  = 172
	SYS_SBRK    = 214
	SYS_MUNMAP  = 215
	SYS_FORK    = 220
	SYS_EXEC    = 221
	SYS_WAITPID = 260
)
