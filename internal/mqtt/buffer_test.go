package mqtt

import (
	"fmt"
	"testing"
)

// tick builds a telemetry message whose payload names its tick.
func tick(n int) bufferedMsg {
	return bufferedMsg{topic: "bakeout/telemetry", payload: []byte(fmt.Sprintf("tick %d", n))}
}

func payloads(msgs []bufferedMsg) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.payload)
	}
	return out
}

func TestRingBufferDrainOrder(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		pushed   int
		want     []string
	}{
		{"empty", 4, 0, nil},
		{"partial", 4, 2, []string{"tick 0", "tick 1"}},
		{"exactly full", 4, 4, []string{"tick 0", "tick 1", "tick 2", "tick 3"}},
		{"outage longer than buffer", 4, 7, []string{"tick 3", "tick 4", "tick 5", "tick 6"}},
		{"wrapped twice", 3, 8, []string{"tick 5", "tick 6", "tick 7"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := newRingBuffer(tt.capacity)
			for i := 0; i < tt.pushed; i++ {
				rb.push(tick(i))
			}
			got := payloads(rb.drainAll())
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("message %d: got %q, want %q", i, got[i], tt.want[i])
				}
			}
			if rb.len() != 0 {
				t.Errorf("len after drain: got %d, want 0", rb.len())
			}
		})
	}
}

func TestRingBufferReusedAcrossOutages(t *testing.T) {
	rb := newRingBuffer(5)

	for i := 0; i < 3; i++ {
		rb.push(tick(i))
	}
	if got := rb.drainAll(); len(got) != 3 {
		t.Fatalf("first outage: got %d messages, want 3", len(got))
	}
	if got := rb.drainAll(); got != nil {
		t.Errorf("second drain: got %v, want nil", payloads(got))
	}

	for i := 100; i < 104; i++ {
		rb.push(tick(i))
	}
	got := payloads(rb.drainAll())
	want := []string{"tick 100", "tick 101", "tick 102", "tick 103"}
	if len(got) != len(want) {
		t.Fatalf("second outage: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("second outage message %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRingBufferKeepsSystemEventFields(t *testing.T) {
	rb := newRingBuffer(2)
	rb.push(tick(1))
	rb.push(bufferedMsg{topic: "bakeout/system", payload: []byte("SHUTDOWN"), qos: 1, retained: true})

	got := rb.drainAll()
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].qos != 0 || got[0].retained {
		t.Errorf("telemetry: got qos %d retained %v, want 0/false", got[0].qos, got[0].retained)
	}
	sys := got[1]
	if sys.topic != "bakeout/system" || sys.qos != 1 || !sys.retained || string(sys.payload) != "SHUTDOWN" {
		t.Errorf("system event: got %+v", sys)
	}
}

func TestRingBufferLen(t *testing.T) {
	rb := newRingBuffer(3)
	for i, want := range []int{1, 2, 3, 3, 3} {
		rb.push(tick(i))
		if rb.len() != want {
			t.Errorf("after %d pushes: len got %d, want %d", i+1, rb.len(), want)
		}
	}
}

func TestRingBufferDroppedCount(t *testing.T) {
	rb := newRingBuffer(3)
	for i := 0; i < 7; i++ {
		rb.push(tick(i))
	}
	if rb.dropped != 4 {
		t.Errorf("dropped: got %d, want 4", rb.dropped)
	}
	rb.drainAll()
	if rb.dropped != 0 {
		t.Errorf("dropped after drain: got %d, want 0", rb.dropped)
	}
}

func TestRingBufferMinimumCapacity(t *testing.T) {
	rb := newRingBuffer(0)
	rb.push(tick(1))
	rb.push(tick(2))
	got := payloads(rb.drainAll())
	if len(got) != 1 || got[0] != "tick 2" {
		t.Errorf("got %v, want only the newest message", got)
	}
}
