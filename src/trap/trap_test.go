package trap

import "testing"

// stubHooks wires every hook var TrapHandler/TrapRetToUserMod reach to a
// test double, replacing the composition root for the duration of one
// test. Each field defaults to a harmless no-op; tests override only the
// hooks their scenario exercises.
type stubHooks struct {
	scause      uint64
	isInterrupt bool
	stval       uint64
	cx          TrapContext_t
	syscalled   bool
	exited      bool
	exitCode    int32
	suspended   bool
	retried     bool
}

func (s *stubHooks) install() {
	ReadScause = func() (uint64, bool) { return s.scause, s.isInterrupt }
	ReadStval = func() uint64 { return s.stval }
	WriteStvec = func(uint64, bool) {}
	EnableTimerInterrupt = func() {}
	SetNextTimerTrigger = func() {}
	Syscall = func(num uint64, args [3]uint64) uint64 {
		s.syscalled = true
		return 7
	}
	CurrentTrapContext = func() *TrapContext_t { return &s.cx }
	CurrentUserToken = func() uint64 { return 0 }
	ExitCurrentAndRunNext = func(code int32) { s.exited = true; s.exitCode = code }
	SuspendCurrentAndRunNext = func() { s.suspended = true }
	AcctTrapEnter = nil
	AcctTrapExit = nil
	SetJumpToRestore(func(uint64, uint64) { s.retried = true })
}

func TestTrapHandlerDispatchesSyscall(t *testing.T) {
	s := &stubHooks{scause: excUserEnvCall, isInterrupt: false}
	s.install()
	s.cx.Sepc = 0x2000
	s.cx.X[17] = 93 // sys_exit, irrelevant to Dispatch stub

	TrapHandler()

	if !s.syscalled {
		t.Fatal("expected Syscall hook to be invoked for UserEnvCall")
	}
	if s.cx.Sepc != 0x2004 {
		t.Fatalf("expected sepc advanced past ecall, got %#x", s.cx.Sepc)
	}
	if s.cx.X[10] != 7 {
		t.Fatalf("expected a0 = 7 (the stub's return value), got %d", s.cx.X[10])
	}
	if !s.retried {
		t.Fatal("expected TrapRetToUserMod to reach the trampoline jump")
	}
}

func TestTrapHandlerKillsOnPageFault(t *testing.T) {
	s := &stubHooks{scause: excLoadPageFault, isInterrupt: false, stval: 0xdead0000}
	s.install()

	TrapHandler()

	if !s.exited {
		t.Fatal("expected ExitCurrentAndRunNext on page fault")
	}
}

func TestTrapHandlerSuspendsOnTimer(t *testing.T) {
	s := &stubHooks{scause: intSupervisorTimer, isInterrupt: true}
	s.install()

	TrapHandler()

	if !s.suspended {
		t.Fatal("expected SuspendCurrentAndRunNext on a timer interrupt")
	}
	if s.exited {
		t.Fatal("a timer interrupt must not kill the process")
	}
}

func TestTrapHandlerPanicsOnUnrecognisedTrap(t *testing.T) {
	s := &stubHooks{scause: 0x3f, isInterrupt: false}
	s.install()

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for an unrecognised scause")
		}
	}()
	TrapHandler()
}

func TestAcctHooksRunAroundTrapHandling(t *testing.T) {
	s := &stubHooks{scause: excUserEnvCall, isInterrupt: false}
	s.install()

	var entered, exited bool
	AcctTrapEnter = func() { entered = true }
	AcctTrapExit = func() { exited = true }

	TrapHandler()

	if !entered {
		t.Fatal("expected AcctTrapEnter to run on trap entry")
	}
	if !exited {
		t.Fatal("expected AcctTrapExit to run before the trampoline jump")
	}
}
