// Package sbi wraps the handful of Supervisor Binary Interface ecalls this
// kernel issues: console I/O, the timer, and board shutdown. Every call
// traps to the firmware running in machine mode; none of it is expressible
// in portable Go, so each function is a hook installed by the composition
// root at boot, backed by the actual `ecall` sequence.
package sbi

const (
	sbiSetTimer     = 0
	sbiConsolePutc  = 1
	sbiConsoleGetc  = 2
	sbiShutdown     = 8
)

/// Ecall is the raw SBI call: (eid, arg0, arg1, arg2) -> value. Installed by
/// the composition root at boot, backed by the actual `ecall` instruction.
var Ecall func(eid, arg0, arg1, arg2 uint64) uint64

func call(eid uint64, a0 uint64) uint64 {
	if Ecall == nil {
		return 0
	}
	return Ecall(eid, a0, 0, 0)
}

/// ConsolePutchar writes one byte to the SBI debug console.
func ConsolePutchar(c uint8) {
	call(sbiConsolePutc, uint64(c))
}

/// ConsoleGetchar polls the SBI console once and returns the byte read, or
/// -1 if the console has nothing buffered on this poll.
func ConsoleGetchar() int64 {
	return int64(call(sbiConsoleGetc, 0))
}

/// SetTimer programs the next timer interrupt for the given absolute cycle
/// count.
func SetTimer(stimeValue uint64) {
	call(sbiSetTimer, stimeValue)
}

/// Shutdown powers off the board. ok selects a success or failure shutdown
/// reason where the underlying SBI implementation distinguishes them.
func Shutdown(ok bool) {
	a0 := uint64(0)
	if !ok {
		a0 = 1
	}
	call(sbiShutdown, a0)
	for {
	}
}
