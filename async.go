package sageflow

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/sageflow-ai/sageflow/internal/eventbus"
)

// asyncRun tracks one background run: its context tape, the cancel handle of
// its detached execution, and the terminal outcome once set.
type asyncRun struct {
	rc     *RunContext
	cancel context.CancelFunc
	result *AggregatedResult
	err    error
}

// AsyncRunStatus is the status snapshot of a background run.
type AsyncRunStatus struct {
	RunID        string        `json:"run_id"`
	Query        string        `json:"query"`
	CurrentState PipelineState `json:"current_state"`
	StartTime    time.Time     `json:"start_time"`
	Duration     time.Duration `json:"duration"`
	IsComplete   bool          `json:"is_complete"`
	HasError     bool          `json:"has_error"`
	ErrorMessage string        `json:"error_message,omitempty"`
	ErrorStage   string        `json:"error_stage,omitempty"`
}

// RunAsync starts a background run and returns a run ID usable with
// AsyncStatus, AsyncResult and CancelAsyncRun. The run is detached from the
// caller's context; cancel it through CancelAsyncRun.
func (p *Pipeline) RunAsync(ctx context.Context, text string, initialContext map[string]interface{}, params map[string]interface{}) (string, error) {
	runID := uuid.New().String()

	rc := NewRunContext(text, initialContext, params)
	sm := p.createStateMachine()

	asyncCtx, cancel := context.WithCancel(context.Background())
	run := &asyncRun{rc: rc, cancel: cancel}

	p.asyncRunsMutex.Lock()
	p.asyncRuns[runID] = run
	p.asyncRunsMutex.Unlock()

	p.publishAsyncEvent(ctx, eventbus.EventRunAsyncStarted, text, map[string]interface{}{
		"run_id":    runID,
		"timestamp": time.Now().Format(time.RFC3339),
	})

	go func() {
		defer cancel()

		result, err := sm.Execute(asyncCtx, rc)
		if err == nil && rc.State() == StateError && result == nil {
			result = p.fallbackResult(rc)
		}

		p.asyncRunsMutex.Lock()
		run.result = result
		run.err = err
		p.asyncRunsMutex.Unlock()

		eventType := eventbus.EventRunAsyncSuccess
		metadata := map[string]interface{}{
			"run_id":      runID,
			"duration_ms": rc.TotalDuration().Milliseconds(),
		}
		if err != nil {
			_, stage := rc.Failure()
			eventType = eventbus.EventRunAsyncFailure
			metadata["error"] = err.Error()
			metadata["error_stage"] = stage
		}
		p.publishAsyncEvent(context.Background(), eventType, text, metadata)
	}()

	return runID, nil
}

// AsyncStatus retrieves the current status of a background run.
func (p *Pipeline) AsyncStatus(runID string) (*AsyncRunStatus, error) {
	p.asyncRunsMutex.RLock()
	defer p.asyncRunsMutex.RUnlock()

	run, exists := p.asyncRuns[runID]
	if !exists {
		return nil, fmt.Errorf("run with ID '%s' not found", runID)
	}

	rc := run.rc
	state := rc.State()
	status := &AsyncRunStatus{
		RunID:        runID,
		Query:        rc.Query,
		CurrentState: state,
		StartTime:    rc.StartTime,
		Duration:     rc.TotalDuration(),
		IsComplete:   state == StateComplete,
		HasError:     state == StateError,
	}
	if lastErr, stage := rc.Failure(); lastErr != nil {
		status.ErrorMessage = lastErr.Error()
		status.ErrorStage = stage
	}
	return status, nil
}

// AsyncResult retrieves the result of a terminal background run. The answer
// contract mirrors Run: a run with stage faults still yields a partial
// result, and only cancellation surfaces as an error.
func (p *Pipeline) AsyncResult(runID string) (*AggregatedResult, error) {
	p.asyncRunsMutex.RLock()
	defer p.asyncRunsMutex.RUnlock()

	run, exists := p.asyncRuns[runID]
	if !exists {
		return nil, fmt.Errorf("run with ID '%s' not found", runID)
	}

	if !run.rc.IsTerminal() {
		return nil, fmt.Errorf("run is still in progress (current state: %s)", run.rc.State())
	}
	return run.result, run.err
}

// CancelAsyncRun cancels a background run that is still in progress. Returns
// false when the run already reached a terminal state.
func (p *Pipeline) CancelAsyncRun(runID string) (bool, error) {
	p.asyncRunsMutex.Lock()
	defer p.asyncRunsMutex.Unlock()

	run, exists := p.asyncRuns[runID]
	if !exists {
		return false, fmt.Errorf("run with ID '%s' not found", runID)
	}
	if run.rc.IsTerminal() {
		return false, nil
	}

	run.cancel()

	p.publishAsyncEvent(context.Background(), eventbus.EventRunAsyncCancelled, run.rc.Query, map[string]interface{}{
		"run_id":      runID,
		"duration_ms": run.rc.TotalDuration().Milliseconds(),
	})
	return true, nil
}

// ListAsyncRuns returns the IDs and current states of all tracked runs.
func (p *Pipeline) ListAsyncRuns() map[string]PipelineState {
	p.asyncRunsMutex.RLock()
	defer p.asyncRunsMutex.RUnlock()

	out := make(map[string]PipelineState, len(p.asyncRuns))
	for id, run := range p.asyncRuns {
		out[id] = run.rc.State()
	}
	return out
}

// CleanupCompletedRuns drops terminal runs older than the given duration and
// returns the number removed. It keeps the tracking map from growing without
// bound on long-lived pipelines.
func (p *Pipeline) CleanupCompletedRuns(olderThan time.Duration) int {
	p.asyncRunsMutex.Lock()
	defer p.asyncRunsMutex.Unlock()

	now := time.Now()
	count := 0
	for id, run := range p.asyncRuns {
		if !run.rc.IsTerminal() {
			continue
		}
		if entered := run.rc.LastTransition(); !entered.IsZero() && now.Sub(entered) >= olderThan {
			delete(p.asyncRuns, id)
			count++
		}
	}
	return count
}

func (p *Pipeline) publishAsyncEvent(ctx context.Context, eventType eventbus.EventType, payload interface{}, metadata map[string]interface{}) {
	if !p.config.EnableEventBus || p.eventBus == nil {
		return
	}
	event := eventbus.NewEvent(eventType, payload, "Pipeline.RunAsync", metadata)
	if err := p.eventBus.Publish(context.WithoutCancel(ctx), event); err != nil {
		log.Printf("Failed to publish async event (type: %s, error: %v)", eventType, err)
	}
}
