// ABOUTME: Per-conversation progress snapshot and its pure event reducer
// ABOUTME: Apply folds decoded events into observable turn state

package client

import (
	"github.com/fixai/fixai-gateway/internal/agentloop"
)

// Tool step status values.
const (
	StepRunning = "running"
	StepDone    = "done"
	StepError   = "error"
)

// ToolStep is one tool invocation's lifecycle as observed from the stream.
type ToolStep struct {
	ID            string
	Tool          string
	Args          map[string]any
	Ordinal       int
	ModelCall     int
	Status        string
	ResultPreview string
	ResultLength  int
	DurationMS    int64
}

// ProgressSnapshot is the complete observable state of one conversation's
// in-flight (or just-finished) turn. The zero value is a valid empty
// snapshot.
type ProgressSnapshot struct {
	ToolSteps        []ToolStep
	StreamingContent string
	FinalText        string
	IsStreaming      bool
	Stats            *agentloop.StatsPayload
	Error            string

	// Stopped is set by a local stop request; token events arriving after it
	// are discarded.
	Stopped bool
}

// Apply folds one event into a snapshot and returns the updated copy. It
// never mutates its input: tool step slices are copied before modification so
// old snapshots stay valid.
func Apply(s ProgressSnapshot, e Event) ProgressSnapshot {
	switch e.Type {
	case agentloop.EventToken:
		if s.Stopped || e.Token == nil {
			return s
		}
		s.StreamingContent += e.Token.Content
		s.IsStreaming = true

	case agentloop.EventToolStart:
		if e.ToolStart == nil {
			return s
		}
		steps := make([]ToolStep, len(s.ToolSteps), len(s.ToolSteps)+1)
		copy(steps, s.ToolSteps)
		s.ToolSteps = append(steps, ToolStep{
			ID:        e.ToolStart.ID,
			Tool:      e.ToolStart.Tool,
			Args:      e.ToolStart.Args,
			Ordinal:   e.ToolStart.ToolNumber,
			ModelCall: e.ToolStart.ModelCall,
			Status:    StepRunning,
		})
		if !s.Stopped {
			s.IsStreaming = true
		}

	case agentloop.EventToolEnd:
		if e.ToolEnd == nil {
			return s
		}
		steps := make([]ToolStep, len(s.ToolSteps))
		copy(steps, s.ToolSteps)
		// tool calls are sequential, so the running step is the last one
		for i := len(steps) - 1; i >= 0; i-- {
			if steps[i].Status != StepRunning {
				continue
			}
			steps[i].Status = StepDone
			if e.ToolEnd.IsError {
				steps[i].Status = StepError
			}
			steps[i].ResultPreview = e.ToolEnd.ResultPreview
			steps[i].ResultLength = e.ToolEnd.ResultLength
			steps[i].DurationMS = e.ToolEnd.DurationMS
			break
		}
		s.ToolSteps = steps

	case agentloop.EventStats:
		if e.Stats == nil {
			return s
		}
		stats := *e.Stats
		s.Stats = &stats
		if !s.Stopped {
			s.IsStreaming = true
		}

	case agentloop.EventDone:
		if e.Done == nil {
			return s
		}
		s.FinalText = e.Done.Content
		s.StreamingContent = ""
		s.IsStreaming = false

	case agentloop.EventError:
		if e.Err == nil {
			return s
		}
		s.Error = e.Err.Error
		s.IsStreaming = false
	}
	return s
}
