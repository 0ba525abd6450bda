package core

// Per-wake dispatch budgets: every Dispatch call starts with the smaller
// budget. When it runs out, Dispatch returns to the task runner if tasks
// have been busy since the last check; otherwise it refills the budget with
// the larger idle count, since nothing else is competing for the loop.
const (
	TimerRepeatCount     = 20
	TimerIdleRepeatCount = 100
)

// TimerMinTryTicks is the point at or below which Dispatch busy-waits on the
// clock for a not-yet-due head instead of returning (roughly 2us of ticks).
var TimerMinTryTicks = FromUS(2)

// fatalLatenessUS is how far past its waketime a timer can be found before
// Dispatch gives up and shuts the system down instead of catching up.
const fatalLatenessUS = 100_000

// Dispatch drains the timer queue while work is due, honoring the repeat
// budgets and the 100ms fatal-lateness rule. It is a no-op unless
// must_wake_timers is set (by AddTimer, when the added timer becomes the
// queue head).
func Dispatch() {
	if !mustWakeTimers {
		return
	}

	budget := TimerRepeatCount
	next := NextWaketime()
	skipSample := false

	for {
		if skipSample {
			skipSample = false
		} else {
			now := ReadTime()
			diff := int32(next - now)

			if diff > int32(TimerMinTryTicks) {
				state := disableInterrupts()
				mustWakeTimers = false
				restoreInterrupts(state)
				return
			}

			if diff > 0 {
				for diff > 0 {
					now = ReadTime()
					diff = int32(next - now)
				}
			}

			// The fatal-lateness check only applies once the budget has
			// actually run out; a resample forced merely because the cache
			// said "not yet due" is not a budget exhaustion.
			if budget <= 0 {
				if diff < -int32(FromUS(fatalLatenessUS)) {
					RecordTiming(EvtTimerPast, 0, next, now, uint32(-diff))
					TryShutdown(ReasonRescheduledTimerInPast)
					return
				}
				if checkSetTasksBusy() {
					return
				}
				budget = TimerIdleRepeatCount
			}
		}

		next = dispatchOne()
		budget--
		if budget > 0 && !IsBefore(LastReadTime(), next) {
			// Cached last_read_time already shows the new head as due:
			// skip resampling the clock and dispatch it immediately.
			skipSample = true
		}
	}
}
