package ui

import (
	"sync"
	"time"
)

// ProgressTracker manages generation progress state across stages.
// It is safe for concurrent use.
type ProgressTracker struct {
	mu         sync.RWMutex
	stage      Stage
	percent    int
	current    int
	total      int
	step       string
	startTime  time.Time
	stageStart time.Time
	errors     []ErrorEvent
	warnings   []ErrorEvent

	// ETA smoothing to prevent wild fluctuations
	lastETA time.Duration

	// Activity tracking for the sparkline
	lastPercent int
	lastSample  time.Time
	sparkline   *Sparkline
}

// ProgressStats contains a snapshot of current progress.
type ProgressStats struct {
	Stage      Stage
	Percent    int     // Overall progress, 0-100
	Fraction   float64 // Percent as 0.0-1.0 for progress bars
	Current    int     // Completed chapters
	Total      int     // Planned chapters
	Step       string  // Current step text
	ETA        time.Duration
	Elapsed    time.Duration
	ErrorCount int
	WarnCount  int
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		stage:      StageFetching,
		startTime:  now,
		stageStart: now,
		lastSample: now,
		sparkline:  NewSparkline(60),
	}
}

// SetStage transitions to a new stage. Overall percent and chapter counts
// carry across stages because the job reports them cumulatively.
func (p *ProgressTracker) SetStage(stage Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.step = ""
	p.stageStart = time.Now()
}

// Update applies a progress event within the current stage.
func (p *ProgressTracker) Update(event ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.Percent > p.percent {
		p.percent = event.Percent
	}
	if event.Step != "" {
		p.step = event.Step
	}
	if event.Total > 0 {
		p.total = event.Total
	}
	if event.Current > p.current {
		p.current = event.Current
	}

	// Sample progress velocity every 500ms to avoid noise
	now := time.Now()
	elapsed := now.Sub(p.lastSample)
	if elapsed >= 500*time.Millisecond {
		delta := p.percent - p.lastPercent
		if delta > 0 {
			p.sparkline.Add(float64(delta) / elapsed.Seconds())
		} else {
			p.sparkline.Add(0)
		}
		p.lastPercent = p.percent
		p.lastSample = now
	}
}

// AddError records an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings = append(p.warnings, event)
	} else {
		p.errors = append(p.errors, event)
	}
}

// Fraction returns overall progress as 0.0-1.0.
func (p *ProgressTracker) Fraction() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return fraction(p.percent)
}

// ETA estimates remaining time based on overall progress.
// Uses write lock because calculateETA modifies lastETA for smoothing.
func (p *ProgressTracker) ETA() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.calculateETA()
}

// Elapsed returns time since tracker creation.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return time.Since(p.startTime)
}

// Stats returns current statistics snapshot.
// Uses write lock because calculateETA modifies lastETA for smoothing.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ProgressStats{
		Stage:      p.stage,
		Percent:    p.percent,
		Fraction:   fraction(p.percent),
		Current:    p.current,
		Total:      p.total,
		Step:       p.step,
		ETA:        p.calculateETA(),
		Elapsed:    time.Since(p.startTime),
		ErrorCount: len(p.errors),
		WarnCount:  len(p.warnings),
	}
}

func fraction(percent int) float64 {
	if percent <= 0 {
		return 0.0
	}
	if percent >= 100 {
		return 1.0
	}
	return float64(percent) / 100.0
}

// etaSmoothingFactor controls how much weight is given to new ETA values.
// 0.3 means 30% new value + 70% previous value, providing smooth updates.
const etaSmoothingFactor = 0.3

// calculateETA calculates ETA with exponential smoothing (must be called
// with lock held). The smoothing prevents wild fluctuations when chapter
// generation times vary.
func (p *ProgressTracker) calculateETA() time.Duration {
	progress := fraction(p.percent)
	if progress <= 0 || progress >= 1.0 {
		return 0
	}

	elapsed := time.Since(p.startTime)
	totalEstimate := time.Duration(float64(elapsed) / progress)
	rawRemaining := totalEstimate - elapsed

	if rawRemaining < 0 {
		return 0
	}

	if p.lastETA == 0 {
		p.lastETA = rawRemaining
		return rawRemaining
	}

	smoothed := time.Duration(
		etaSmoothingFactor*float64(rawRemaining) +
			(1-etaSmoothingFactor)*float64(p.lastETA),
	)
	p.lastETA = smoothed

	return smoothed
}

// Errors returns the list of recorded errors.
func (p *ProgressTracker) Errors() []ErrorEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]ErrorEvent, len(p.errors))
	copy(result, p.errors)
	return result
}

// Warnings returns the list of recorded warnings.
func (p *ProgressTracker) Warnings() []ErrorEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]ErrorEvent, len(p.warnings))
	copy(result, p.warnings)
	return result
}

// RenderSparkline returns the activity sparkline string.
func (p *ProgressTracker) RenderSparkline(width int) string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.sparkline == nil {
		return ""
	}
	return p.sparkline.Render(width)
}
