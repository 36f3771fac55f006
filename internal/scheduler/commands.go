package scheduler

import (
	"fmt"
	"log"

	"github.com/sweeney/bakeout/internal/zone"
)

// Operator commands. They are queued and applied between ticks; the
// returned error only reports a bad zone id or a full queue.

// Stage adjusts the staged setpoint of id (and of its coupled group) by d.
func (s *Scheduler) Stage(id int, d zone.Setpoint) error {
	if err := s.checkZone(id); err != nil {
		return err
	}
	return s.submit(func() { s.stage(id, d) })
}

// Commit applies the staged setpoint of id and every zone coupled to it.
func (s *Scheduler) Commit(id int) error {
	if err := s.checkZone(id); err != nil {
		return err
	}
	return s.submit(func() { s.commit(id) })
}

// SetWriteEveryMinute switches the sample cadence of id (and of its
// coupled group).
func (s *Scheduler) SetWriteEveryMinute(id int, on bool) error {
	if err := s.checkZone(id); err != nil {
		return err
	}
	return s.submit(func() { s.setWriteEveryMinute(id, on) })
}

func (s *Scheduler) checkZone(id int) error {
	if id < 0 || id >= len(s.zones) {
		return fmt.Errorf("no tape %d", id+1)
	}
	return nil
}

func (s *Scheduler) stage(id int, d zone.Setpoint) {
	lim := s.params.Limits
	if !s.sync.Stage(id, d, lim) {
		s.zones[id].Stage(d, lim)
		return
	}
	for _, m := range s.sync.Members(id) {
		s.sync.Apply(&s.zones[m])
	}
}

func (s *Scheduler) commit(id int) {
	for _, m := range s.sync.Members(id) {
		s.sync.Apply(&s.zones[m])
		s.zones[m].Commit(s.params.OvershootMargin)
		d := s.zones[m].Desired()
		log.Printf("tape %d: committed temp=%.2f rate=%.2f ki=%.2f", m+1, d.Temp, d.Rate, d.Ki)
	}
	s.sync.Committed(s.zones[id])
}

func (s *Scheduler) setWriteEveryMinute(id int, on bool) {
	if !s.sync.SetWriteEveryMinute(id, on) {
		s.zones[id].WriteEveryMinute = on
		return
	}
	for _, m := range s.sync.Members(id) {
		s.sync.Apply(&s.zones[m])
	}
}
