package lifetime

import "testing"

func TestLifetime_Phases(t *testing.T) {
	lt := New(nil)
	if got := lt.Phase(); got != PhasePending {
		t.Fatalf("phase = %s, want pending", got)
	}

	lt.NotifyStarted()
	if got := lt.Phase(); got != PhaseRunning {
		t.Fatalf("phase = %s, want running", got)
	}

	lt.StopApplication()
	lt.StopApplication()
	if got := lt.Phase(); got != PhaseStopping {
		t.Fatalf("phase = %s, want stopping", got)
	}

	lt.NotifyStopped()
	if got := lt.Phase(); got != PhaseStopped {
		t.Fatalf("phase = %s, want stopped", got)
	}
}

func TestLifetime_SignalsAreIndependent(t *testing.T) {
	lt := New(nil)
	lt.StopApplication()
	if lt.Started().Fired() {
		t.Fatal("stopping fired started")
	}
	if lt.Stopped().Fired() {
		t.Fatal("stopping fired stopped")
	}
}
