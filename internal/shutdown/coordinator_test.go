package shutdown

import "testing"

func TestShutdownIsIdempotent(t *testing.T) {
	c := New(nil)

	runs := 0
	c.OnStop(func() { runs++ })

	c.Shutdown("signal")
	c.Shutdown("signal")
	c.Shutdown("again")

	if runs != 1 {
		t.Fatalf("hook ran %d times, expected 1", runs)
	}
	if !c.Stopped() {
		t.Fatal("Stopped()=false after Shutdown")
	}
	select {
	case <-c.Done():
	default:
		t.Fatal("Done channel not closed")
	}
}

func TestStoppedFalseBeforeShutdown(t *testing.T) {
	c := New(nil)
	if c.Stopped() {
		t.Fatal("Stopped()=true before Shutdown")
	}
}

func TestOnStopAfterShutdownRunsImmediately(t *testing.T) {
	c := New(nil)
	c.Shutdown("signal")

	ran := false
	c.OnStop(func() { ran = true })
	if !ran {
		t.Fatal("late hook did not run immediately")
	}
}
