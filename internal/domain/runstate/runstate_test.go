package runstate

import "testing"

func TestNewControllerStartsPaused(t *testing.T) {
	c := New()
	if !c.TCP.IsPaused() || !c.UDP.IsPaused() || !c.Beacon.IsPaused() {
		t.Fatal("expected all flags paused at construction")
	}
}

func TestRunTransitionsAllThreeFlags(t *testing.T) {
	c := New()
	c.Run()
	if !c.TCP.IsRunning() || !c.UDP.IsRunning() || !c.Beacon.IsRunning() {
		t.Fatal("expected all flags running after Run")
	}
}

func TestPauseDoesNotShutdown(t *testing.T) {
	c := New()
	c.Run()
	c.Pause()
	if !c.TCP.IsPaused() {
		t.Fatal("expected TCP flag paused")
	}
	if c.TCP.IsShutdown() {
		t.Fatal("pause must not look like shutdown")
	}
}

func TestShutdownIsTerminalAcrossAllFlags(t *testing.T) {
	c := New()
	c.Run()
	c.Shutdown()
	if !c.TCP.IsShutdown() || !c.UDP.IsShutdown() || !c.Beacon.IsShutdown() {
		t.Fatal("expected all flags shut down")
	}
}

func TestFlagsAreIndependentOfController(t *testing.T) {
	c := New()
	c.TCP.Set(Run)
	if c.UDP.IsRunning() {
		t.Fatal("setting one flag must not affect the others")
	}
}
