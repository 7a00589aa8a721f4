package lifecycle

import "testing"

func TestLifecycle_Draining(t *testing.T) {
	var l Lifecycle
	if l.IsDraining() || !l.AcceptingInterviews() {
		t.Fatalf("zero value should accept interviews")
	}
	l.SetDraining(true)
	if !l.IsDraining() || l.AcceptingInterviews() {
		t.Fatalf("draining lifecycle should refuse interviews")
	}
	l.SetDraining(false)
	if l.IsDraining() {
		t.Fatalf("draining should be reversible")
	}
}

func TestLifecycle_NilSafe(t *testing.T) {
	var l *Lifecycle
	l.SetDraining(true)
	if l.IsDraining() {
		t.Fatalf("nil lifecycle should never drain")
	}
}
