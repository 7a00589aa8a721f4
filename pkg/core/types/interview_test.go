package types

import "testing"

func TestSessionConfigFreeze(t *testing.T) {
	src := SessionConfig{
		Persona:        Persona{ID: "founder", Name: "Marcus Sterling"},
		Harshness:      140,
		JobDescription: "  Staff engineer, payments  ",
		Resume:         "\n",
	}
	frozen := src.Freeze()
	if frozen.Harshness != 100 {
		t.Fatalf("harshness=%d, want 100", frozen.Harshness)
	}
	if frozen.JobDescription != "Staff engineer, payments" {
		t.Fatalf("job description=%q", frozen.JobDescription)
	}
	if frozen.Resume != "" {
		t.Fatalf("resume=%q, want empty", frozen.Resume)
	}

	src.Persona.Name = "changed"
	if frozen.Persona.Name != "Marcus Sterling" {
		t.Fatalf("frozen config observed later change: %q", frozen.Persona.Name)
	}
}

func TestClampHarshness(t *testing.T) {
	cases := map[int]int{-5: 0, 0: 0, 55: 55, 100: 100, 101: 100}
	for in, want := range cases {
		if got := ClampHarshness(in); got != want {
			t.Errorf("ClampHarshness(%d)=%d, want %d", in, got, want)
		}
	}
}

func TestStatusLive(t *testing.T) {
	for _, s := range []Status{StatusConnecting, StatusConnected} {
		if !s.Live() {
			t.Errorf("%s.Live()=false", s)
		}
	}
	for _, s := range []Status{StatusIdle, StatusDisconnecting, StatusDisconnected, StatusErrored} {
		if s.Live() {
			t.Errorf("%s.Live()=true", s)
		}
	}
}
