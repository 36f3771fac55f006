// Package coupling keeps groups of zones that heat one workpiece in step.
//
// Zones in a group share one staged setpoint and may only advance their
// ramp when every live member has reached its current step. The
// Synchronizer is owned by the scheduler and is not safe for concurrent use.
package coupling

import (
	"fmt"

	"github.com/sweeney/bakeout/internal/zone"
)

type group struct {
	members          []int
	staged           zone.Setpoint
	pending          bool
	writeEveryMinute bool
}

// Synchronizer computes the per-tick SharedSetpoint for every zone.
type Synchronizer struct {
	groupOf []int // index into groups, -1 for uncoupled zones
	groups  []*group
}

// New builds a synchronizer for zones, with groups given as 0-based zone
// ids. A group's staged setpoint starts from its first member's.
func New(zones []zone.Zone, groups [][]int) (*Synchronizer, error) {
	s := &Synchronizer{groupOf: make([]int, len(zones))}
	for i := range s.groupOf {
		s.groupOf[i] = -1
	}

	for gi, ids := range groups {
		if len(ids) < 2 {
			return nil, fmt.Errorf("coupling group %d: need at least two zones", gi)
		}
		for _, id := range ids {
			if id < 0 || id >= len(zones) {
				return nil, fmt.Errorf("coupling group %d: zone %d out of range", gi, id)
			}
			if s.groupOf[id] >= 0 {
				return nil, fmt.Errorf("coupling group %d: zone %d already coupled", gi, id)
			}
			s.groupOf[id] = gi
		}
		first := zones[ids[0]]
		s.groups = append(s.groups, &group{
			members:          append([]int(nil), ids...),
			staged:           first.Staged(),
			writeEveryMinute: first.WriteEveryMinute,
		})
	}
	return s, nil
}

// Members returns the ids of every zone that moves together with id,
// including id itself. An uncoupled zone is its own single member.
func (s *Synchronizer) Members(id int) []int {
	g := s.group(id)
	if g == nil {
		return []int{id}
	}
	return append([]int(nil), g.members...)
}

// Coupled reports whether id belongs to a group.
func (s *Synchronizer) Coupled(id int) bool {
	return s.group(id) != nil
}

func (s *Synchronizer) group(id int) *group {
	if id < 0 || id >= len(s.groupOf) || s.groupOf[id] < 0 {
		return nil
	}
	return s.groups[s.groupOf[id]]
}

// Compute returns the SharedSetpoint for every zone for the coming tick.
func (s *Synchronizer) Compute(zones []zone.Zone) []zone.SharedSetpoint {
	out := make([]zone.SharedSetpoint, len(zones))
	for i, z := range zones {
		g := s.group(i)
		if g == nil {
			st := z.Staged()
			out[i] = zone.SharedSetpoint{
				AllSteppedToSame: true,
				SetTemp:          st.Temp,
				SetRate:          st.Rate,
				SetKi:            st.Ki,
				PendingCommit:    z.PendingCommit,
				WriteEveryMinute: z.WriteEveryMinute,
			}
			continue
		}
		out[i] = zone.SharedSetpoint{
			AllSteppedToSame: allStepped(zones, g.members) && !ahead(z, zones, g.members),
			Coupled:          true,
			SetTemp:          g.staged.Temp,
			SetRate:          g.staged.Rate,
			SetKi:            g.staged.Ki,
			PendingCommit:    g.pending,
			WriteEveryMinute: g.writeEveryMinute,
		}
	}
	return out
}

// allStepped is true when every live member has completed its current
// step. Inoperable members are skipped: they can no longer heat and would
// hold the rest of the group forever.
func allStepped(zones []zone.Zone, members []int) bool {
	for _, id := range members {
		z := zones[id]
		if z.Status == zone.StatusInoperable {
			continue
		}
		if !z.StepComplete {
			return false
		}
	}
	return true
}

// ahead reports whether z has stepped past another live member in its ramp
// direction. A zone that is ahead waits while the others catch up, so a
// group that entered the ramp at different readings converges on one step.
func ahead(z zone.Zone, zones []zone.Zone, members []int) bool {
	for _, id := range members {
		o := zones[id]
		if o.ID == z.ID || o.Status == zone.StatusInoperable || o.StepsTaken == 0 {
			continue
		}
		if z.SteppingUp && z.StepTarget > o.StepTarget {
			return true
		}
		if !z.SteppingUp && z.StepTarget < o.StepTarget {
			return true
		}
	}
	return false
}

// Stage adjusts the group's shared staged setpoint, exactly as
// zone.Zone.Stage would for a single zone. It returns false if id is not
// coupled; the caller then stages on the zone itself.
func (s *Synchronizer) Stage(id int, d zone.Setpoint, lim zone.Limits) bool {
	g := s.group(id)
	if g == nil {
		return false
	}
	// Reuse the zone rounding and clamping on a scratch zone.
	var scratch zone.Zone
	scratch.StagedTemp, scratch.StagedRate, scratch.StagedKi = g.staged.Temp, g.staged.Rate, g.staged.Ki
	scratch.Stage(d, lim)
	g.staged = scratch.Staged()
	g.pending = true
	return true
}

// Apply copies the group's staged setpoint into z, so a commit between
// ticks sees the latest operator changes. Uncoupled zones are unchanged.
func (s *Synchronizer) Apply(z *zone.Zone) {
	g := s.group(z.ID)
	if g == nil {
		return
	}
	z.StagedTemp, z.StagedRate, z.StagedKi = g.staged.Temp, g.staged.Rate, g.staged.Ki
	z.PendingCommit = g.pending
	z.WriteEveryMinute = g.writeEveryMinute
}

// Committed records that the group containing id has been committed.
// The rate sign chosen by the commit is taken from z.
func (s *Synchronizer) Committed(z zone.Zone) {
	g := s.group(z.ID)
	if g == nil {
		return
	}
	g.staged = z.Staged()
	g.pending = false
}

// SetWriteEveryMinute switches the sample cadence for id's group. It
// returns false if id is not coupled.
func (s *Synchronizer) SetWriteEveryMinute(id int, on bool) bool {
	g := s.group(id)
	if g == nil {
		return false
	}
	g.writeEveryMinute = on
	return true
}
