package logging

import "strings"

// ProgressSampler suppresses repetitive progress logs while preserving signal
// when the reporting unit or the percentage bucket changes.
type ProgressSampler struct {
	bucketSize float64
	lastUnit   string
	lastBucket int
}

// NewProgressSampler constructs a sampler that emits when the percent crosses
// bucket boundaries (default 5%) or when the unit changes.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 5
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress event should be logged. A negative
// percent means "unknown" and only a unit change can trigger output.
func (s *ProgressSampler) ShouldLog(percent float64, unit string) bool {
	if s == nil {
		return true
	}
	unit = strings.TrimSpace(unit)
	emit := false
	if unit != "" && unit != s.lastUnit {
		s.lastUnit = unit
		s.lastBucket = -1
		emit = true
	}
	if percent >= 0 {
		bucket := int(percent / s.bucketSize)
		if percent >= 100 {
			bucket = int(100 / s.bucketSize)
		}
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears the sampler state.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastUnit = ""
	s.lastBucket = -1
}
