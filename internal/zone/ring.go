package zone

import "math"

// Ring is a fixed-capacity sample buffer indexed by tick: the slot for tick
// n is n mod Cap. Unwritten slots hold NaN.
//
// Copying a Ring copies the slice header only; use Clone for a private copy.
type Ring struct {
	vals []float64
}

// NewRing returns an empty ring with the given capacity.
func NewRing(capacity int) Ring {
	vals := make([]float64, capacity)
	for i := range vals {
		vals[i] = math.NaN()
	}
	return Ring{vals: vals}
}

// Cap returns the ring capacity.
func (r Ring) Cap() int {
	return len(r.vals)
}

// Put stores v in the slot for tick.
func (r Ring) Put(tick uint64, v float64) {
	r.vals[r.index(tick)] = v
}

// At returns the value stored in the slot for tick, if any.
func (r Ring) At(tick uint64) (float64, bool) {
	v := r.vals[r.index(tick)]
	return v, !math.IsNaN(v)
}

// Window returns up to n slots ending at tick (inclusive), oldest first.
// Slots never written are NaN.
func (r Ring) Window(tick uint64, n int) []float64 {
	if n > len(r.vals) {
		n = len(r.vals)
	}
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	end := r.index(tick)
	for i := 0; i < n; i++ {
		j := (end - (n - 1 - i) + len(r.vals)) % len(r.vals)
		out[i] = r.vals[j]
	}
	return out
}

// Clone returns a ring that shares no memory with r.
func (r Ring) Clone() Ring {
	return Ring{vals: append([]float64(nil), r.vals...)}
}

func (r Ring) index(tick uint64) int {
	return int(tick % uint64(len(r.vals)))
}
