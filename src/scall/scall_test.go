package scall

import (
	"encoding/binary"
	"testing"

	"defs"
	"fd"
	"mem"
	"proc"
	"vm"
)

func freshFrames(n int) {
	pages := make([]*mem.Pg_t, n)
	for i := range pages {
		pages[i] = &mem.Pg_t{}
	}
	mem.Frames.Init(0, mem.Ppn_t(n), pages)
}

// buildElf assembles a minimal ELF64 LE image with one RW PT_LOAD segment
// at vaddr 0x1000 carrying segdata, enough for proc.Mkpcb to accept it and
// give the resulting process real backing pages to read and write through.
func buildElf(segdata []uint8) []uint8 {
	const ehsize, phentsize = 64, 56
	buf := make([]uint8, ehsize+phentsize+len(segdata))
	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	binary.LittleEndian.PutUint64(buf[24:], 0x1000)
	binary.LittleEndian.PutUint64(buf[32:], ehsize)
	binary.LittleEndian.PutUint16(buf[54:], phentsize)
	binary.LittleEndian.PutUint16(buf[56:], 1)
	ph := buf[ehsize:]
	binary.LittleEndian.PutUint32(ph[0:], 1)   // PT_LOAD
	binary.LittleEndian.PutUint32(ph[4:], 4|2) // R|W
	binary.LittleEndian.PutUint64(ph[8:], uint64(ehsize+phentsize))
	binary.LittleEndian.PutUint64(ph[16:], 0x1000)
	binary.LittleEndian.PutUint64(ph[32:], uint64(len(segdata)))
	binary.LittleEndian.PutUint64(ph[40:], uint64(len(segdata)))
	copy(buf[ehsize+phentsize:], segdata)
	return buf
}

// setupCurrent arms the frame allocator, the kernel address space, and
// installs a freshly built process as the processor's current process, so
// sysRead/sysWrite/sysExec have real user memory to copy through.
func setupCurrent(t *testing.T, segdata []uint8) (*proc.Pcb_t, mem.Va_t) {
	t.Helper()
	freshFrames(512)
	vm.SetTrampoline(0)
	vm.SetKernelVm(vm.Mkvm())
	p, err := proc.Mkpcb(buildElf(segdata))
	if err != 0 {
		t.Fatalf("Mkpcb: err = %d", err)
	}
	proc.SetCurrentForTest(p)
	return p, mem.MkVa(0x1000)
}

func TestDispatchUnknownSyscallReturnsENOENT(t *testing.T) {
	got := Dispatch(999999, [3]uint64{})
	if int64(got) != int64(defs.ENOENT) {
		t.Fatalf("Dispatch(unknown) = %d, want %d", int64(got), defs.ENOENT)
	}
}

func TestDispatchOpenAlwaysFails(t *testing.T) {
	got := Dispatch(defs.SYS_OPEN, [3]uint64{})
	if int64(got) != int64(defs.EINVAL) {
		t.Fatalf("Dispatch(SYS_OPEN) = %d, want %d", int64(got), defs.EINVAL)
	}
}

func TestDescriptorPermissions(t *testing.T) {
	cases := []struct {
		fdnum int
		want  int
	}{
		{0, fd.FD_READ},
		{1, fd.FD_WRITE},
		{2, fd.FD_WRITE},
		{defs.D_STAT, fd.FD_READ},
		{defs.D_PROF, fd.FD_READ},
	}
	for _, c := range cases {
		f, ok := descriptor(c.fdnum)
		if !ok {
			t.Fatalf("descriptor(%d): expected ok", c.fdnum)
		}
		if f.Perms != c.want {
			t.Fatalf("descriptor(%d).Perms = %#x, want %#x", c.fdnum, f.Perms, c.want)
		}
	}
	if _, ok := descriptor(99); ok {
		t.Fatal("descriptor(99): expected no such fd")
	}
}

func TestSysWriteRejectsReadOnlyFd(t *testing.T) {
	// fd 0 (stdin) is read-only: sysWrite must reject it before it ever
	// touches the current process, so this needs no process set up.
	if rc := sysWrite(0, 0, 4); rc != int(defs.EINVAL) {
		t.Fatalf("sysWrite(fd 0) = %d, want EINVAL", rc)
	}
}

func TestSysReadRejectsWriteOnlyFd(t *testing.T) {
	if rc := sysRead(1, 0, 4); rc != int(defs.EINVAL) {
		t.Fatalf("sysRead(fd 1) = %d, want EINVAL", rc)
	}
	if rc := sysRead(2, 0, 4); rc != int(defs.EINVAL) {
		t.Fatalf("sysRead(fd 2) = %d, want EINVAL", rc)
	}
}

func TestSysReadRejectsUnknownFd(t *testing.T) {
	if rc := sysRead(42, 0, 4); rc != int(defs.EINVAL) {
		t.Fatalf("sysRead(unknown fd) = %d, want EINVAL", rc)
	}
}

func TestSysWriteCopiesFromUserMemory(t *testing.T) {
	_, va := setupCurrent(t, []uint8("hello"))
	n := sysWrite(1, va, 5)
	if n != 5 {
		t.Fatalf("sysWrite = %d, want 5", n)
	}
}

func TestSysReadFromStatsDeviceWritesIntoUserMemory(t *testing.T) {
	_, va := setupCurrent(t, make([]uint8, 64))
	n := sysRead(defs.D_STAT, va, 64)
	if n <= 0 {
		t.Fatalf("sysRead(D_STAT) = %d, want > 0", n)
	}
}

func TestSysExecUnknownAppReturnsENOENT(t *testing.T) {
	p, va := setupCurrent(t, []uint8("no-such-app\x00"))
	p.Inner.Lock()
	werr := p.Inner.Vm.K2user([]uint8("no-such-app\x00"), va)
	p.Inner.Unlock()
	if werr != 0 {
		t.Fatalf("K2user: err = %d", werr)
	}
	if err := sysExec(va); err != defs.ENOENT {
		t.Fatalf("sysExec(unknown app) = %d, want ENOENT", err)
	}
}

func TestSysGetpidMatchesCurrentProcess(t *testing.T) {
	p, _ := setupCurrent(t, nil)
	if got := sysGetpid(); got != p.Getpid() {
		t.Fatalf("sysGetpid() = %d, want %d", got, p.Getpid())
	}
}

func TestSysWaitpidReturnsECHILDWithNoChildren(t *testing.T) {
	setupCurrent(t, nil)
	if rc := sysWaitpid(-1, 0); rc != int(defs.ECHILD) {
		t.Fatalf("sysWaitpid(no children) = %d, want ECHILD", rc)
	}
}

func TestSysSbrkRejectsShrinkBelowBase(t *testing.T) {
	setupCurrent(t, nil)
	if rc := sysSbrk(-1 << 20); rc != -1 {
		t.Fatalf("sysSbrk(huge negative) = %d, want -1", rc)
	}
}
