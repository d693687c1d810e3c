package chat

import (
	"errors"
	"strings"
	"testing"
)

func TestOutbox_FIFO(t *testing.T) {
	ob := NewOutbox(Twitch, 8)
	for _, m := range []string{"one", "two", "three"} {
		if err := ob.Enqueue(m); err != nil {
			t.Fatalf("Enqueue(%q) error = %v", m, err)
		}
	}
	if ob.Len() != 3 {
		t.Errorf("Len() = %d, want 3", ob.Len())
	}
	if got := strings.Join(ob.Drain(), ","); got != "one,two,three" {
		t.Errorf("Drain() = %s", got)
	}
	if _, ok := ob.TryPop(); ok {
		t.Error("TryPop() on empty outbox returned a message")
	}
}

func TestOutbox_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*Outbox)
		text    string
		wantErr error
	}{
		{"empty text", func(*Outbox) {}, "   ", ErrEmptyMessage},
		{"full", func(o *Outbox) { _ = o.Enqueue("a"); _ = o.Enqueue("b") }, "c", ErrOutboxFull},
		{"closed", func(o *Outbox) { o.Close() }, "a", ErrOutboxClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ob := NewOutbox(YouTube, 2)
			tt.setup(ob)
			if err := ob.Enqueue(tt.text); !errors.Is(err, tt.wantErr) {
				t.Errorf("Enqueue() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOutbox_ClosedStillDrains(t *testing.T) {
	ob := NewOutbox(Twitch, 0)
	if ob.Cap() != DefaultOutboxCapacity {
		t.Errorf("Cap() = %d, want %d", ob.Cap(), DefaultOutboxCapacity)
	}
	_ = ob.Enqueue("left")
	ob.Close()
	if got := ob.Drain(); len(got) != 1 || got[0] != "left" {
		t.Errorf("Drain() after Close = %v", got)
	}
}
