package core

// ShutdownState is the shutdown controller's two-phase state machine.
type ShutdownState int8

const (
	// StateNormal means no shutdown is in effect; IsShutdown reports false
	// only in this state. AddTimer and the task loop do not consult the
	// state themselves.
	StateNormal ShutdownState = 0
	// StateShutdown is the terminal state: the queue has been reset and
	// run_shutdownfuncs has completed.
	StateShutdown ShutdownState = 1
	// StateInProgress is the transient state while run_shutdownfuncs is
	// executing.
	StateInProgress ShutdownState = 2
)

// Shutdown reason codes, doubling as the static_string_id in the emitted
// shutdown message.
const (
	ReasonNone uint16 = iota
	ReasonTimerTooClose
	ReasonRescheduledTimerInPast
	ReasonSentinelCalled
	ReasonShutdownClearedWhenNotShutdown
	ReasonHostRequested
)

var (
	shutdownStatus = StateNormal
	shutdownReason = ReasonNone
)

// shutdownSignal is the panic value used as the non-local jump from
// anywhere in the call stack back to RunTasks's landing pad. Nothing
// outside this package should construct or recover one directly.
type shutdownSignal struct {
	reason uint16
}

// Shutdown transfers control to the shutdown landing pad unconditionally.
// It never returns to its caller.
func Shutdown(reason uint16) {
	panic(shutdownSignal{reason: reason})
}

// TryShutdown calls Shutdown unless the system is already shutting down or
// shut down, matching try_shutdown's "don't re-enter while already handling
// a shutdown" contract.
func TryShutdown(reason uint16) {
	if !IsShutdown() {
		Shutdown(reason)
	}
}

// IsShutdown reports whether the controller has left StateNormal.
func IsShutdown() bool {
	state := disableInterrupts()
	s := shutdownStatus
	restoreInterrupts(state)
	return s != StateNormal
}

// ClearShutdown returns the controller to StateNormal from StateShutdown.
// Calling it while StateNormal is itself a shutdown-worthy error; calling
// it during StateInProgress is a no-op (the landing pad owns that
// transition).
func ClearShutdown() {
	state := disableInterrupts()
	switch shutdownStatus {
	case StateShutdown:
		shutdownStatus = StateNormal
		shutdownReason = ReasonNone
		restoreInterrupts(state)
	case StateInProgress:
		restoreInterrupts(state)
	default:
		restoreInterrupts(state)
		Shutdown(ReasonShutdownClearedWhenNotShutdown)
	}
}

// ShutdownReason returns the latched reason for the most recent shutdown.
func ShutdownReason() uint16 {
	state := disableInterrupts()
	r := shutdownReason
	restoreInterrupts(state)
	return r
}

// shutdownMessageSink emits the "shutdown clock=<u32> static_string_id=<u16>"
// message. Defaults to the debug writer; cmd/tickcored rewires it to log the
// shutdown, count it in its metrics, and exit the process.
var shutdownMessageSink = func(clock uint32, reason uint16) {
	DebugPrintln("shutdown clock=" + utoa(clock) + " static_string_id=" + utoa(uint32(reason)))
}

// SetShutdownMessageSink overrides where the shutdown message is emitted.
func SetShutdownMessageSink(sink func(clock uint32, reason uint16)) {
	shutdownMessageSink = sink
}

// runShutdown is the landing pad body RunTasks invokes after recovering a
// shutdownSignal: disable interrupts, latch the reason, enter IN_PROGRESS,
// reset the timer queue, run the host's shutdown funcs, enter SHUTDOWN,
// re-enable interrupts, and finally emit the shutdown message.
func runShutdown(reason uint16, runShutdownFuncs func()) {
	state := disableInterrupts()
	if shutdownReason == ReasonNone {
		shutdownReason = reason
	}
	shutdownStatus = StateInProgress

	ResetQueue()
	if runShutdownFuncs != nil {
		runShutdownFuncs()
	}

	shutdownStatus = StateShutdown
	restoreInterrupts(state)

	RecordTiming(EvtShutdown, 0, LastReadTime(), uint32(reason), 0)
	shutdownMessageSink(LastReadTime(), shutdownReason)
	if IsDebugEnabled() {
		DumpTimingRing()
	}
}
