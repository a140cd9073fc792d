package session

import "time"

// Duration returns the armed time of the segment, measuring open segments up to now.
func (s *SegmentRecord) Duration(now time.Time) time.Duration {
	if s.EndTime.IsZero() {
		if now.Before(s.StartTime) {
			return 0
		}
		return now.Sub(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

func (s *SegmentRecord) IsActive() bool {
	return s.EndTime.IsZero()
}
