package redis

import "time"

// SetClock replaces the time source used for index scores.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}
