package filecache

// Stats counts cache activity for one caller. The zero value is ready to use
// and a nil *Stats disables accounting.
type Stats struct {
	Hits          int `json:"hits"`
	Misses        int `json:"misses"`
	StaleMisses   int `json:"stale_misses"`
	Writes        int `json:"writes"`
	WriteFailures int `json:"write_failures"`
	Recomputes    int `json:"recomputes"`
}

// Merge adds other into s.
func (s *Stats) Merge(other Stats) {
	if s == nil {
		return
	}
	s.Hits += other.Hits
	s.Misses += other.Misses
	s.StaleMisses += other.StaleMisses
	s.Writes += other.Writes
	s.WriteFailures += other.WriteFailures
	s.Recomputes += other.Recomputes
}

// Lookups returns the number of lookups observed.
func (s Stats) Lookups() int {
	return s.Hits + s.Misses + s.StaleMisses
}

// HitRate returns hits over lookups, or 0 when nothing was looked up.
func (s Stats) HitRate() float64 {
	total := s.Lookups()
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (s *Stats) hit() {
	if s != nil {
		s.Hits++
	}
}

func (s *Stats) miss(stale bool) {
	if s == nil {
		return
	}
	if stale {
		s.StaleMisses++
		return
	}
	s.Misses++
}

func (s *Stats) wrote(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.WriteFailures++
		return
	}
	s.Writes++
}

func (s *Stats) recomputed() {
	if s != nil {
		s.Recomputes++
	}
}
