package hub

import "testing"

type fakeSender struct {
	frames []any
	refuse bool
}

func (f *fakeSender) Send(v any) bool {
	if f.refuse {
		return false
	}
	f.frames = append(f.frames, v)
	return true
}

func TestHubBroadcast(t *testing.T) {
	h := New()
	a, b, other := &fakeSender{}, &fakeSender{}, &fakeSender{}

	h.Join("s1", a)
	h.Join("s1", b)
	h.Join("s2", other)

	if sent := h.Broadcast("s1", "frame"); sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}
	if len(a.frames) != 1 || len(b.frames) != 1 {
		t.Fatalf("frames = %d/%d, want 1/1", len(a.frames), len(b.frames))
	}
	if len(other.frames) != 0 {
		t.Fatal("other session received the frame")
	}
}

func TestHubLeave(t *testing.T) {
	h := New()
	a := &fakeSender{}

	h.Join("s1", a)
	h.Leave("s1", a)

	if sent := h.Broadcast("s1", "frame"); sent != 0 {
		t.Fatalf("sent = %d, want 0", sent)
	}
	if h.Size("s1") != 0 {
		t.Fatalf("size = %d, want 0", h.Size("s1"))
	}

	// Leaving an unknown group is a no-op.
	h.Leave("s9", a)
}

func TestHubRefusedSendNotCounted(t *testing.T) {
	h := New()
	a := &fakeSender{refuse: true}
	b := &fakeSender{}

	h.Join("s1", a)
	h.Join("s1", b)

	if sent := h.Broadcast("s1", "frame"); sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
}
