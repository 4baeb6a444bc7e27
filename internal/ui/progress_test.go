package ui

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProgressTracker(t *testing.T) {
	// When: creating a new tracker
	tracker := NewProgressTracker()

	// Then: starts at StageFetching with zero progress
	stats := tracker.Stats()
	assert.Equal(t, StageFetching, stats.Stage)
	assert.Equal(t, 0, stats.Percent)
	assert.Equal(t, 0, stats.Current)
	assert.Equal(t, 0, stats.Total)
}

func TestProgressTracker_SetStage(t *testing.T) {
	// Given: a new tracker
	tracker := NewProgressTracker()

	// When: transitioning stages
	tracker.SetStage(StageIndexing)

	// Then: stage is updated and step cleared
	stats := tracker.Stats()
	assert.Equal(t, StageIndexing, stats.Stage)
	assert.Empty(t, stats.Step)
}

func TestProgressTracker_Update(t *testing.T) {
	// Given: a tracker in writing stage
	tracker := NewProgressTracker()
	tracker.SetStage(StageWriting)

	// When: updating progress
	tracker.Update(ProgressEvent{
		Percent: 62,
		Current: 3,
		Total:   8,
		Step:    "Generating chapter 3/8: Architecture",
	})

	// Then: all fields are updated
	stats := tracker.Stats()
	assert.Equal(t, 62, stats.Percent)
	assert.Equal(t, 3, stats.Current)
	assert.Equal(t, 8, stats.Total)
	assert.Equal(t, "Generating chapter 3/8: Architecture", stats.Step)
}

func TestProgressTracker_PercentNeverDecreases(t *testing.T) {
	// Given: a tracker at 50%
	tracker := NewProgressTracker()
	tracker.Update(ProgressEvent{Percent: 50})

	// When: a lower percent arrives
	tracker.Update(ProgressEvent{Percent: 30})

	// Then: percent holds
	assert.Equal(t, 50, tracker.Stats().Percent)
}

func TestProgressTracker_CountsSurviveStageChange(t *testing.T) {
	// Given: chapter counts from the writing stage
	tracker := NewProgressTracker()
	tracker.SetStage(StageWriting)
	tracker.Update(ProgressEvent{Percent: 80, Current: 6, Total: 8})

	// When: moving to merging
	tracker.SetStage(StageMerging)
	tracker.Update(ProgressEvent{Percent: 90})

	// Then: counts carry across
	stats := tracker.Stats()
	assert.Equal(t, 6, stats.Current)
	assert.Equal(t, 8, stats.Total)
	assert.Equal(t, 90, stats.Percent)
}

func TestProgressTracker_Fraction(t *testing.T) {
	tests := []struct {
		name     string
		percent  int
		expected float64
	}{
		{"zero", 0, 0.0},
		{"half done", 50, 0.5},
		{"complete", 100, 1.0},
		{"over 100%", 150, 1.0}, // Capped at 1.0
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewProgressTracker()
			tracker.Update(ProgressEvent{Percent: tt.percent})

			assert.InDelta(t, tt.expected, tracker.Fraction(), 0.01)
		})
	}
}

func TestProgressTracker_AddError(t *testing.T) {
	// Given: a tracker
	tracker := NewProgressTracker()

	// When: adding an error
	tracker.AddError(ErrorEvent{
		File:   "broken.go",
		Err:    assert.AnError,
		IsWarn: false,
	})

	// Then: error count increases
	stats := tracker.Stats()
	assert.Equal(t, 1, stats.ErrorCount)
	assert.Equal(t, 0, stats.WarnCount)

	// When: adding a warning
	tracker.AddError(ErrorEvent{
		File:   "warning.go",
		Err:    assert.AnError,
		IsWarn: true,
	})

	// Then: warning count increases
	stats = tracker.Stats()
	assert.Equal(t, 1, stats.ErrorCount)
	assert.Equal(t, 1, stats.WarnCount)
}

func TestProgressTracker_ETA_ZeroProgress(t *testing.T) {
	// Given: a tracker with no progress
	tracker := NewProgressTracker()

	// When: calculating ETA
	eta := tracker.ETA()

	// Then: returns 0 (unknown)
	assert.Equal(t, time.Duration(0), eta)
}

func TestProgressTracker_ETA_PartialProgress(t *testing.T) {
	// Given: a tracker with some progress
	tracker := NewProgressTracker()

	// Simulate some time passing
	time.Sleep(50 * time.Millisecond)

	// Update to 50%
	tracker.Update(ProgressEvent{Percent: 50})

	// When: calculating ETA
	eta := tracker.ETA()

	// Then: ETA should be roughly equal to elapsed time (50% done in ~50ms, so ~50ms remaining)
	// Allow some variance for test execution time
	assert.True(t, eta >= 0, "ETA should be non-negative")
	assert.True(t, eta < 500*time.Millisecond, "ETA should be reasonable")
}

func TestProgressTracker_ETA_CompleteIsZero(t *testing.T) {
	// Given: a tracker at 100%
	tracker := NewProgressTracker()
	tracker.Update(ProgressEvent{Percent: 100})

	// When: calculating ETA
	eta := tracker.ETA()

	// Then: returns 0
	assert.Equal(t, time.Duration(0), eta)
}

func TestProgressTracker_ThreadSafety(t *testing.T) {
	// Given: a tracker
	tracker := NewProgressTracker()

	// When: concurrent updates
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tracker.Update(ProgressEvent{Percent: n})
			tracker.Fraction()
			tracker.Stats()
		}(i)
	}
	wg.Wait()

	// Then: no panic, data is consistent
	stats := tracker.Stats()
	require.NotNil(t, stats)
}

func TestProgressTracker_StageTransition(t *testing.T) {
	// Given: a tracker progressing through stages
	tracker := NewProgressTracker()

	// Stage 1: Fetching
	tracker.Update(ProgressEvent{Percent: 20, Step: "Downloaded 96 files"})
	assert.Equal(t, StageFetching, tracker.Stats().Stage)

	// Stage 2: Scanning
	tracker.SetStage(StageScanning)
	assert.Equal(t, StageScanning, tracker.Stats().Stage)
	assert.Empty(t, tracker.Stats().Step) // Step resets on stage change

	// Stage 3: Indexing
	tracker.SetStage(StageIndexing)
	tracker.Update(ProgressEvent{Percent: 40, Step: "Embedding chunks (200/512)"})
	assert.Equal(t, StageIndexing, tracker.Stats().Stage)

	// Stage 4: Writing
	tracker.SetStage(StageWriting)
	tracker.Update(ProgressEvent{Percent: 70, Current: 4, Total: 8})
	assert.Equal(t, StageWriting, tracker.Stats().Stage)

	// Complete
	tracker.SetStage(StageComplete)
	assert.Equal(t, StageComplete, tracker.Stats().Stage)
}

func TestProgressTracker_ElapsedTime(t *testing.T) {
	// Given: a tracker
	tracker := NewProgressTracker()

	// When: some time passes
	time.Sleep(10 * time.Millisecond)

	// Then: elapsed time is tracked
	elapsed := tracker.Elapsed()
	assert.True(t, elapsed >= 10*time.Millisecond)
}

func TestProgressStats_Fields(t *testing.T) {
	// Given: a configured tracker
	tracker := NewProgressTracker()
	tracker.SetStage(StageWriting)
	tracker.Update(ProgressEvent{
		Percent: 75,
		Current: 5,
		Total:   8,
		Step:    "Generating chapter 5/8: Storage",
	})
	tracker.AddError(ErrorEvent{File: "err.go", Err: assert.AnError, IsWarn: false})
	tracker.AddError(ErrorEvent{File: "warn.go", Err: assert.AnError, IsWarn: true})

	// When: getting stats
	stats := tracker.Stats()

	// Then: all fields are populated
	assert.Equal(t, StageWriting, stats.Stage)
	assert.Equal(t, 75, stats.Percent)
	assert.InDelta(t, 0.75, stats.Fraction, 0.01)
	assert.Equal(t, 5, stats.Current)
	assert.Equal(t, 8, stats.Total)
	assert.Equal(t, "Generating chapter 5/8: Storage", stats.Step)
	assert.Equal(t, 1, stats.ErrorCount)
	assert.Equal(t, 1, stats.WarnCount)
}
