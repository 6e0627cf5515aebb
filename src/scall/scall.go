// Package scall implements the syscall dispatch table trap.go calls into
// on every UserEnvCall exception: exit, yield, get_time, sbrk, fork,
// exec, getpid, waitpid, write, read, munmap.
package scall

import (
	"time"

	"console"
	"defs"
	"fd"
	"loader"
	"mem"
	"proc"
	"stats"
	"ustr"
)

/// Dispatch looks up num in the syscall table and invokes it with args
/// taken from a0..a2, returning the value trap.go writes back into a0.
/// Unrecognised numbers return ENOENT rather than panicking: a bad
/// syscall number is a user mistake, not a kernel bug.
func Dispatch(num uint64, args [3]uint64) uint64 {
	switch num {
	case defs.SYS_EXIT:
		sysExit(int32(args[0]))
		panic("unreachable: sys_exit does not return")
	case defs.SYS_YIELD:
		return rc(sysYield())
	case defs.SYS_GET_TIME:
		return rc(sysGetTime())
	case defs.SYS_SBRK:
		return rc(sysSbrk(int(int64(args[0]))))
	case defs.SYS_FORK:
		return rc(sysFork())
	case defs.SYS_EXEC:
		return rc(int(sysExec(mem.Va_t(args[0]))))
	case defs.SYS_GETPID:
		return rc(sysGetpid())
	case defs.SYS_WAITPID:
		return rc(sysWaitpid(int(int64(args[0])), mem.Va_t(args[1])))
	case defs.SYS_WRITE:
		return rc(sysWrite(int(args[0]), mem.Va_t(args[1]), int(args[2])))
	case defs.SYS_READ:
		return rc(sysRead(int(args[0]), mem.Va_t(args[1]), int(args[2])))
	case defs.SYS_MUNMAP:
		return rc(int(sysMunmap(mem.Va_t(args[0]), int(args[1]))))
	case defs.SYS_OPEN:
		return rc(int(defs.EINVAL))
	default:
		return rc(int(defs.ENOENT))
	}
}

func rc(n int) uint64 {
	return uint64(int64(n))
}

func sysExit(code int32) {
	proc.ExitCurrentAndRunNext(code)
}

func sysYield() int {
	proc.SuspendCurrentAndRunNext()
	return 0
}

// bootTime is stamped at package load, which for this hosted kernel is as
// close to "boot" as it gets (kmain.Boot runs once, immediately after
// process start, before any user process can call sys_get_time).
var bootTime = time.Now()

func sysGetTime() int {
	return int(time.Since(bootTime).Milliseconds())
}

func sysSbrk(n int) int {
	va, err := proc.Sbrk(n)
	if err != 0 {
		return -1
	}
	return int(va)
}

func sysFork() int {
	return proc.Fork()
}

func sysExec(pathVa mem.Va_t) defs.Err_t {
	current := proc.CloneCurrentProcess()
	pathBytes, err := current.Inner.Vm.UserReadCstr(pathVa, 256)
	if err != 0 {
		return err
	}
	path := ustr.MkUstrSlice(pathBytes)
	return proc.Exec(path.String(), loader.GetAppDataByName)
}

func sysGetpid() int {
	return proc.CloneCurrentProcess().Getpid()
}

func sysWaitpid(pid int, codeVa mem.Va_t) int {
	foundPid, code, err := proc.Waitpid(pid)
	if err != 0 {
		return err.Rc()
	}
	current := proc.CloneCurrentProcess()
	buf := [4]uint8{uint8(code), uint8(code >> 8), uint8(code >> 16), uint8(code >> 24)}
	current.Inner.Lock()
	writeErr := current.Inner.Vm.K2user(buf[:], codeVa)
	current.Inner.Unlock()
	if writeErr != 0 {
		return writeErr.Rc()
	}
	return foundPid
}

func sysWrite(fdnum int, bufVa mem.Va_t, length int) int {
	f, ok := descriptor(fdnum)
	if !ok || f.Perms&fd.FD_WRITE == 0 {
		return int(defs.EINVAL)
	}
	src := make([]uint8, length)
	current := proc.CloneCurrentProcess()
	current.Inner.Lock()
	err := current.Inner.Vm.User2k(src, bufVa)
	current.Inner.Unlock()
	if err != 0 {
		return err.Rc()
	}
	n, werr := f.Fops.Write(src)
	if werr != 0 {
		return werr.Rc()
	}
	return n
}

func sysRead(fdnum int, bufVa mem.Va_t, length int) int {
	f, ok := descriptor(fdnum)
	if !ok || f.Perms&fd.FD_READ == 0 {
		return int(defs.EINVAL)
	}
	dst := make([]uint8, length)
	n, rerr := f.Fops.Read(dst)
	if rerr != 0 {
		return rerr.Rc()
	}
	current := proc.CloneCurrentProcess()
	current.Inner.Lock()
	werr := current.Inner.Vm.K2user(dst[:n], bufVa)
	current.Inner.Unlock()
	if werr != 0 {
		return werr.Rc()
	}
	return n
}

func sysMunmap(addr mem.Va_t, length int) defs.Err_t {
	return proc.Munmap(addr, length)
}

/// descriptor resolves a raw fd number to an Fd_t wrapping its Fdops_i
/// backend with the permission bits sysRead/sysWrite enforce. There is no
/// filesystem and no per-process fd table in this kernel: 0 is hardwired
/// read-only to the console, 1/2 write-only to it, and D_STAT/D_PROF name
/// the read-only accounting and pprof-profile devices directly, matching
/// the closed device set defs/device.go enumerates.
func descriptor(fdnum int) (*fd.Fd_t, bool) {
	switch fdnum {
	case 0:
		return &fd.Fd_t{Fops: &console.Console, Perms: fd.FD_READ}, true
	case 1, 2:
		return &fd.Fd_t{Fops: &console.Console, Perms: fd.FD_WRITE}, true
	case defs.D_STAT:
		return &fd.Fd_t{Fops: &statsDevice{}, Perms: fd.FD_READ}, true
	case defs.D_PROF:
		return &fd.Fd_t{Fops: &profDevice{}, Perms: fd.FD_READ}, true
	default:
		return nil, false
	}
}

/// statsDevice renders stats.Stats2String on read, exposing the
/// scheduler's counters over the D_STAT device; it has no write side.
type statsDevice struct{}

func (statsDevice) Read(dst []uint8) (int, defs.Err_t) {
	s := stats.Stats2String(stats.Sched)
	n := copy(dst, s)
	return n, 0
}
func (statsDevice) Write([]uint8) (int, defs.Err_t) { return 0, defs.EINVAL }
func (statsDevice) Close() defs.Err_t                { return 0 }
func (statsDevice) Reopen() defs.Err_t               { return 0 }

/// profDevice serializes stats.ExportProfile's pprof profile.Profile on
/// read, exposing the D_PROF device spec.md reserves.
type profDevice struct{}

func (profDevice) Read(dst []uint8) (int, defs.Err_t) {
	var buf []uint8
	w := &byteSink{&buf}
	if err := stats.ExportProfile().Write(w); err != nil {
		return 0, defs.EINVAL
	}
	n := copy(dst, buf)
	return n, 0
}
func (profDevice) Write([]uint8) (int, defs.Err_t) { return 0, defs.EINVAL }
func (profDevice) Close() defs.Err_t                { return 0 }
func (profDevice) Reopen() defs.Err_t               { return 0 }

type byteSink struct {
	buf *[]uint8
}

func (s *byteSink) Write(p []uint8) (int, error) {
	*s.buf = append(*s.buf, p...)
	return len(p), nil
}
