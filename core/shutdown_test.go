package core

import "testing"

func resetShutdownState(t *testing.T) {
	t.Helper()
	prevStatus, prevReason := shutdownStatus, shutdownReason
	prevSink := shutdownMessageSink
	shutdownStatus, shutdownReason = StateNormal, ReasonNone
	t.Cleanup(func() {
		shutdownStatus, shutdownReason = prevStatus, prevReason
		shutdownMessageSink = prevSink
	})
}

func TestIsShutdownReflectsState(t *testing.T) {
	resetShutdownState(t)

	if IsShutdown() {
		t.Fatal("fresh controller reports shut down")
	}
	shutdownStatus = StateShutdown
	if !IsShutdown() {
		t.Fatal("StateShutdown should report IsShutdown() true")
	}
}

func TestTryShutdownDoesNotReenter(t *testing.T) {
	resetShutdownState(t)
	shutdownStatus = StateShutdown

	// TryShutdown must not panic (i.e. must not call Shutdown) once the
	// controller has already left StateNormal.
	TryShutdown(ReasonHostRequested)
}

func TestClearShutdownFromNormalIsFatal(t *testing.T) {
	resetShutdownState(t)

	var caught *shutdownSignal
	func() {
		defer func() {
			if r := recover(); r != nil {
				sig := r.(shutdownSignal)
				caught = &sig
			}
		}()
		ClearShutdown()
	}()

	if caught == nil {
		t.Fatal("ClearShutdown from StateNormal should shut down")
	}
	if caught.reason != ReasonShutdownClearedWhenNotShutdown {
		t.Fatalf("reason = %d, want ReasonShutdownClearedWhenNotShutdown", caught.reason)
	}
}

func TestClearShutdownFromShutdownReturnsToNormal(t *testing.T) {
	resetShutdownState(t)
	shutdownStatus = StateShutdown
	shutdownReason = ReasonHostRequested

	ClearShutdown()

	if shutdownStatus != StateNormal {
		t.Fatalf("shutdownStatus = %d, want StateNormal", shutdownStatus)
	}
	if shutdownReason != ReasonNone {
		t.Fatalf("shutdownReason = %d, want ReasonNone", shutdownReason)
	}
}

func TestRunShutdownSequence(t *testing.T) {
	resetShutdownState(t)
	withQueueClock(t, 1000)

	var gotClock uint32
	var gotReason uint16
	shutdownMessageSink = func(clock uint32, reason uint16) {
		gotClock = clock
		gotReason = reason
	}

	var shutdownFuncsRan bool
	runShutdown(ReasonTimerTooClose, func() { shutdownFuncsRan = true })

	if shutdownStatus != StateShutdown {
		t.Fatalf("shutdownStatus = %d, want StateShutdown", shutdownStatus)
	}
	if shutdownReason != ReasonTimerTooClose {
		t.Fatalf("shutdownReason = %d, want ReasonTimerTooClose", shutdownReason)
	}
	if !shutdownFuncsRan {
		t.Fatal("run_shutdownfuncs hook was not invoked")
	}
	if gotReason != ReasonTimerTooClose {
		t.Fatalf("emitted reason = %d, want ReasonTimerTooClose", gotReason)
	}
	if wantClock := LastReadTime(); gotClock != wantClock {
		t.Fatalf("emitted clock = %d, want %d (last_read_time at the point runShutdown's ResetQueue sampled it)", gotClock, wantClock)
	}

	if queueHead != periodicTimer {
		t.Fatal("runShutdown must reset the timer queue")
	}
}

func TestRunTasksRecoversShutdownAndContinues(t *testing.T) {
	resetShutdownState(t)
	withQueueClock(t, 1000)

	prevStatus, prevBusy := tasksStatus, tasksBusy
	tasksStatus, tasksBusy = TasksRequested, TasksIdle
	t.Cleanup(func() { tasksStatus, tasksBusy = prevStatus, prevBusy })

	iterations := 0
	hooks := Hooks{
		RunTaskFuncs: func() {
			iterations++
			if iterations == 1 {
				TryShutdown(ReasonHostRequested)
			}
			if iterations >= 2 {
				panic("stop-test") // escape the infinite loop once verified
			}
		},
		// Simulates the host re-arming the task loop once shutdown handling
		// completes, so the second iteration doesn't block in IRQWait.
		RunShutdownFuncs: func() {
			WakeTasks()
		},
	}

	defer func() {
		r := recover()
		if r != "stop-test" {
			t.Fatalf("unexpected panic: %v", r)
		}
		if !IsShutdown() {
			t.Fatal("controller should be shut down after the first iteration")
		}
		if iterations < 2 {
			t.Fatal("task loop did not continue after recovering a shutdown")
		}
	}()

	RunTasks(hooks)
}
