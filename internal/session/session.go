package session

import (
	"fmt"
	"time"
)

func (s *SessionRecord) Start(start time.Time) {
	if start.IsZero() {
		start = time.Now()
	}
	s.StartTime = start
}

// End closes the session and any armed segment still open.
func (s *SessionRecord) End(end time.Time, reason string) {
	if end.IsZero() {
		end = time.Now()
	}
	s.EndTime = end
	s.EndReason = reason
	if len(s.Segments) > 0 {
		last := &s.Segments[len(s.Segments)-1]
		// only close the segment if the monitor was still armed
		if last.EndTime.IsZero() {
			last.EndTime = end
			last.Reason = reason
		}
	}
}

func (s *SessionRecord) IsActive() bool {
	return s.EndTime.IsZero()
}

// IsIdle reports whether the session has no armed segment open.
func (s *SessionRecord) IsIdle() bool {
	if len(s.Segments) == 0 {
		return true
	}
	last := s.Segments[len(s.Segments)-1]
	return !last.IsActive()
}

// AddSegment opens an armed period.
func (s *SessionRecord) AddSegment(start time.Time) error {
	if !s.IsIdle() {
		return fmt.Errorf("session %s already has an armed segment", s.SessionId)
	}
	if start.IsZero() {
		start = time.Now()
	}
	s.Segments = append(s.Segments, SegmentRecord{StartTime: start})
	return nil
}

// EndSegment closes the open armed period, if any.
func (s *SessionRecord) EndSegment(end time.Time, reason string) {
	if s.IsIdle() {
		return
	}
	if end.IsZero() {
		end = time.Now()
	}
	last := &s.Segments[len(s.Segments)-1]
	last.EndTime = end
	last.Reason = reason
}

func (s *SessionRecord) RecordWarning() {
	s.Warnings++
}

func (s *SessionRecord) RecordExtension() {
	s.Extensions++
}

func (s *SessionRecord) RecordExpiry() {
	s.Expired = true
}

// ArmedDuration sums the armed time of all segments.
func (s *SessionRecord) ArmedDuration(now time.Time) time.Duration {
	var total time.Duration
	for i := range s.Segments {
		total += s.Segments[i].Duration(now)
	}
	return total
}
