package core

// DispatchOutcome is what a timer's callback reports back to the queue.
type DispatchOutcome uint8

const (
	// Done removes the timer from the queue.
	Done DispatchOutcome = iota
	// Reschedule keeps the timer in the queue at its (possibly updated)
	// WakeTime.
	Reschedule
)

// Timer is one record in the singly-linked, waketime-ordered queue. Owners
// embed or allocate a Timer and set WakeTime/Func before calling AddTimer;
// a given Timer must never be linked into the queue twice at once.
type Timer struct {
	WakeTime uint32
	Func     func(*Timer) DispatchOutcome
	Next     *Timer
}

// SentinelOffset anchors the sentinel exactly half the tick space ahead of
// the periodic timer, so every legitimate waketime compares "before" it
// under IsBefore and queue traversal never needs a nil check.
const SentinelOffset = uint32(0x80000000)

// PeriodicIntervalUS is how often the always-present periodic timer fires.
const PeriodicIntervalUS = 100_000

var (
	periodicTimer *Timer
	sentinelTimer *Timer
	deletedTimer  *Timer

	queueHead      *Timer
	lastInsert     *Timer
	mustWakeTimers bool
)

func periodicFunc(t *Timer) DispatchOutcome {
	t.WakeTime += FromUS(PeriodicIntervalUS)
	sentinelTimer.WakeTime = t.WakeTime + SentinelOffset
	return Reschedule
}

func sentinelFunc(t *Timer) DispatchOutcome {
	TryShutdown(ReasonSentinelCalled)
	return Done
}

func deletedFunc(t *Timer) DispatchOutcome {
	return Done
}

// InitQueue allocates the periodic/sentinel/deleted singletons and resets
// the queue to its empty state. Call once before RunTasks.
func InitQueue() {
	periodicTimer = &Timer{Func: periodicFunc}
	sentinelTimer = &Timer{Func: sentinelFunc}
	deletedTimer = &Timer{Func: deletedFunc}
	ResetQueue()
}

// ResetQueue drops all user timers and restores the queue to exactly
// [periodic, sentinel], with last_insert pointed back at periodic.
func ResetQueue() {
	now := ReadTime()
	state := disableInterrupts()
	periodicTimer.WakeTime = now + FromUS(PeriodicIntervalUS)
	periodicTimer.Next = sentinelTimer
	sentinelTimer.WakeTime = periodicTimer.WakeTime + SentinelOffset
	sentinelTimer.Next = nil
	queueHead = periodicTimer
	lastInsert = periodicTimer
	mustWakeTimers = false
	restoreInterrupts(state)
}

// AddTimer inserts t into the queue at its sorted waketime position. If the
// new head's waketime is already in the past, the queue shuts the system
// down with ReasonTimerTooClose instead of inserting.
func AddTimer(t *Timer) {
	t.Next = nil
	now := ReadTime()

	state := disableInterrupts()
	// A waketime equal to the sentinel's is exactly half the tick space
	// ahead of the periodic head, which IsBefore also reports as "before"
	// the head; such a timer goes immediately before the sentinel instead.
	becomesHead := t.WakeTime != sentinelTimer.WakeTime && IsBefore(t.WakeTime, queueHead.WakeTime)
	if becomesHead && IsBefore(t.WakeTime, now) {
		restoreInterrupts(state)
		TryShutdown(ReasonTimerTooClose)
		return
	}
	insertSorted(t)
	if becomesHead {
		mustWakeTimers = true
	}
	restoreInterrupts(state)
	RecordTiming(EvtTimerSchedule, 0, t.WakeTime, now, 0)
}

// insertSorted splices t into the queue at its sorted position, honoring
// the last_insert traversal-start optimization. Caller must hold the
// critical section and t must not already be linked in.
func insertSorted(t *Timer) {
	start := queueHead
	if lastInsert != nil && IsBefore(lastInsert.WakeTime, t.WakeTime) {
		start = lastInsert
	}

	if t.WakeTime != sentinelTimer.WakeTime && IsBefore(t.WakeTime, start.WakeTime) {
		// Only reachable when start is still queueHead (picking lastInsert
		// as start requires t to sort after it, hence after head too): t
		// becomes the new head and the previous head becomes its
		// successor, so nothing already queued is ever lost by this swap.
		t.Next = queueHead
		queueHead = t
		lastInsert = t
		return
	}

	// The sentinel is the unconditional stopper: any legitimate waketime is
	// before it (§ queue invariants), so a tie with the sentinel must still
	// insert before it rather than winning the usual "ties go after the
	// incumbent" rule, or the queue would stop ending in the sentinel.
	pos := start
	for pos.Next != nil && pos.Next != sentinelTimer && !IsBefore(t.WakeTime, pos.Next.WakeTime) {
		pos = pos.Next
	}
	t.Next = pos.Next
	pos.Next = t
	lastInsert = t
}

// DelTimer removes t from the queue. If t is the head, the head slot is
// handed to the deleted trampoline (preserving t's waketime and successor)
// so a dispatch already holding a reference to the head sees a well-defined
// Next chain; the trampoline's own func unconditionally returns Done and
// costs one harmless dispatch cycle before the real successor surfaces.
func DelTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if t == queueHead {
		deletedTimer.WakeTime = t.WakeTime
		deletedTimer.Next = t.Next
		queueHead = deletedTimer
		if lastInsert == t {
			lastInsert = periodicTimer
		}
		return
	}

	pos := queueHead
	for pos != nil && pos.Next != t {
		pos = pos.Next
	}
	if pos != nil {
		pos.Next = t.Next
	}
	if lastInsert == t {
		lastInsert = periodicTimer
	}
}

// NextWaketime returns the current head's waketime without dispatching it.
func NextWaketime() uint32 {
	state := disableInterrupts()
	t := queueHead.WakeTime
	restoreInterrupts(state)
	return t
}

// NilFuncHook is the optional fast path for a timer whose Func is nil,
// mirroring the convention of bypassing the Func slot entirely for the
// single hottest timer in the system. Left unset here; callers that want
// the fast path assign it before starting the dispatch loop.
var NilFuncHook func(*Timer) DispatchOutcome

func invokeTimer(t *Timer) DispatchOutcome {
	if t.Func == nil {
		if NilFuncHook != nil {
			return NilFuncHook(t)
		}
		return Done
	}
	return t.Func(t)
}

// dispatchOne invokes the head timer's callback once and re-places or
// removes it per the outcome. Returns the new head's waketime.
func dispatchOne() uint32 {
	head := queueHead
	wakeTime := head.WakeTime
	res := invokeTimer(head)
	RecordTiming(EvtTimerFire, 0, wakeTime, uint32(res), 0)

	state := disableInterrupts()
	switch res {
	case Done:
		if queueHead == head {
			queueHead = head.Next
			if lastInsert == head {
				lastInsert = periodicTimer
			}
		}
	default: // Reschedule
		next := head.Next
		if next != nil && IsBefore(head.WakeTime, next.WakeTime) {
			// Still sorts before its successor: leave it where it is.
		} else {
			unlinkForReschedule(head)
			insertSorted(head)
		}
	}
	wake := queueHead.WakeTime
	restoreInterrupts(state)
	if res == Reschedule {
		RecordTiming(EvtReschedule, 0, head.WakeTime, wake, 0)
	}
	return wake
}

// unlinkForReschedule removes t from wherever it currently sits so
// insertSorted can re-place it. Caller holds the critical section.
func unlinkForReschedule(t *Timer) {
	if t == queueHead {
		queueHead = t.Next
		return
	}
	pos := queueHead
	for pos != nil && pos.Next != t {
		pos = pos.Next
	}
	if pos != nil {
		pos.Next = t.Next
	}
}
