package scanner

// ScanState is the progress of one pipeline run. It is created per run and
// passed explicitly to every stage; it is not safe for concurrent use,
// which matches the single flow of control over one session.
type ScanState struct {
	ScrollStep   int
	SuccessCount int
	MaxMedia     int
	ScrollBound  int
	Visited      map[string]struct{}
}

// NewScanState creates a state bounded by maxMedia successes and
// scrollBound scroll steps
func NewScanState(maxMedia, scrollBound int) *ScanState {
	return &ScanState{
		MaxMedia:    maxMedia,
		ScrollBound: scrollBound,
		Visited:     make(map[string]struct{}),
	}
}

// Seen reports whether key was already attempted
func (s *ScanState) Seen(key string) bool {
	_, ok := s.Visited[key]
	return ok
}

// MarkVisited records key, returning false if it was already present
func (s *ScanState) MarkVisited(key string) bool {
	if s.Seen(key) {
		return false
	}
	s.Visited[key] = struct{}{}
	return true
}

// NextStep advances the scroll counter and returns the new step
func (s *ScanState) NextStep() int {
	s.ScrollStep++
	return s.ScrollStep
}

// NextSequence is the sequence index the next successful download gets
func (s *ScanState) NextSequence() int {
	return s.SuccessCount
}

// RecordSuccess counts one persisted file. It never exceeds MaxMedia.
func (s *ScanState) RecordSuccess() {
	if s.SuccessCount < s.MaxMedia {
		s.SuccessCount++
	}
}

// Full reports whether the success target is reached
func (s *ScanState) Full() bool {
	return s.SuccessCount >= s.MaxMedia
}

// Exhausted reports whether the scroll bound is reached
func (s *ScanState) Exhausted() bool {
	return s.ScrollStep >= s.ScrollBound
}

// Done reports whether the scan loop should stop
func (s *ScanState) Done() bool {
	return s.Full() || s.Exhausted()
}
