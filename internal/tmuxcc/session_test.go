package tmuxcc

import "testing"

func TestFrameOutputNoPauseConfigured(t *testing.T) {
	s := NewConnState(NewIdMap(), nil, "default", 0)
	line, paused := s.FrameOutput(5, []byte("hi"), 1000)
	if paused {
		t.Fatalf("expected no pause without a threshold")
	}
	if want := "%output %0 hi\n"; line != want {
		t.Fatalf("got %q want %q", line, want)
	}
}

func TestFrameOutputExtendedBeforeThreshold(t *testing.T) {
	s := NewConnState(NewIdMap(), nil, "default", 500)
	line, paused := s.FrameOutput(5, []byte("a"), 1000)
	if paused {
		t.Fatalf("expected no pause on first output")
	}
	if want := "%extended-output %0 0 a\n"; line != want {
		t.Fatalf("got %q want %q", line, want)
	}
	line, paused = s.FrameOutput(5, []byte("b"), 1200)
	if paused {
		t.Fatalf("expected no pause within threshold")
	}
	if want := "%extended-output %0 200 b\n"; line != want {
		t.Fatalf("got %q want %q", line, want)
	}
}

func TestFrameOutputCrossesThresholdPausesOnce(t *testing.T) {
	s := NewConnState(NewIdMap(), nil, "default", 100)
	s.FrameOutput(5, []byte("a"), 1000)
	line, paused := s.FrameOutput(5, []byte("b"), 2000)
	if !paused {
		t.Fatalf("expected pause once threshold exceeded")
	}
	if want := "%pause %0\n"; line != want {
		t.Fatalf("got %q want %q", line, want)
	}
	if !s.IsPaused(5) {
		t.Fatalf("expected pane marked paused")
	}

	line, paused = s.FrameOutput(5, []byte("c"), 2100)
	if paused || line != "" {
		t.Fatalf("expected silent drop for an already-paused pane, got (%q,%v)", line, paused)
	}
}

func TestEnqueueAndDrainPending(t *testing.T) {
	s := NewConnState(NewIdMap(), nil, "default", 0)
	s.EnqueueNotification("%sessions-changed\n")
	s.EnqueueNotification("%window-add @1\n")
	got := s.DrainPending()
	if len(got) != 2 {
		t.Fatalf("expected 2 queued lines, got %d", len(got))
	}
	if len(s.DrainPending()) != 0 {
		t.Fatalf("expected pending queue cleared after drain")
	}
}
