package ui

import "strings"

// Sparkline renders recent activity samples as a row of Unicode block
// characters, scaled against the largest sample seen.
type Sparkline struct {
	samples  []float64
	capacity int
	max      float64
}

// SparklineChars are the Unicode block characters for rendering sparklines.
// 8 levels of height from empty to full.
var SparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// NewSparkline creates a new sparkline holding up to capacity samples.
func NewSparkline(capacity int) *Sparkline {
	if capacity <= 0 {
		capacity = 60
	}
	return &Sparkline{
		samples:  make([]float64, 0, capacity),
		capacity: capacity,
	}
}

// Add appends a sample, discarding the oldest once at capacity.
func (s *Sparkline) Add(value float64) {
	if len(s.samples) == s.capacity {
		dropped := s.samples[0]
		s.samples = append(s.samples[:0], s.samples[1:]...)
		if dropped >= s.max {
			s.rescanMax()
		}
	}
	s.samples = append(s.samples, value)
	if value > s.max {
		s.max = value
	}
}

func (s *Sparkline) rescanMax() {
	s.max = 0
	for _, v := range s.samples {
		if v > s.max {
			s.max = v
		}
	}
}

// Render returns the most recent samples as block characters, left-padded
// to the requested width so the line length is stable.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		width = s.capacity
	}

	if len(s.samples) == 0 {
		return strings.Repeat(string(SparklineChars[0]), width)
	}

	window := s.samples
	if len(window) > width {
		window = window[len(window)-width:]
	}

	var sb strings.Builder
	sb.Grow(width * 3) // UTF-8 block chars are 3 bytes

	for pad := width - len(window); pad > 0; pad-- {
		sb.WriteRune(SparklineChars[0])
	}

	for _, value := range window {
		idx := 0
		if s.max > 0 {
			idx = int(value / s.max * float64(len(SparklineChars)-1))
			if idx < 0 {
				idx = 0
			}
			if idx >= len(SparklineChars) {
				idx = len(SparklineChars) - 1
			}
		}
		sb.WriteRune(SparklineChars[idx])
	}

	return sb.String()
}

// Clear resets the sparkline.
func (s *Sparkline) Clear() {
	s.samples = s.samples[:0]
	s.max = 0
}

// Count returns the number of samples held.
func (s *Sparkline) Count() int {
	return len(s.samples)
}

// Max returns the largest sample currently held.
func (s *Sparkline) Max() float64 {
	return s.max
}
