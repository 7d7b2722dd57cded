package sageflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sageflow-ai/sageflow/internal/eventbus"
)

// PipelineState represents the current stage of one pipeline run.
type PipelineState string

const (
	// StateInit is the initial state of the run
	StateInit PipelineState = "init"
	// StateClassifying represents the intent classification phase
	StateClassifying PipelineState = "classifying"
	// StatePlanning represents the task planning phase
	StatePlanning PipelineState = "planning"
	// StateExecuting represents the tool execution phase
	StateExecuting PipelineState = "executing"
	// StateAggregating represents the result aggregation phase
	StateAggregating PipelineState = "aggregating"
	// StateNarrating represents the optional narrative phase
	StateNarrating PipelineState = "narrating"
	// StateError represents an error state
	StateError PipelineState = "error"
	// StateComplete represents the completed state
	StateComplete PipelineState = "complete"
	// StateCancelled represents the cancelled state
	StateCancelled PipelineState = "cancelled"
	// StateUnknown is used when the status of an async run cannot be determined.
	StateUnknown PipelineState = "unknown"
)

// RunContext carries the data of one pipeline run through the state machine.
// It acts as the tape of a pushdown automaton: the state stack keeps the
// visited stages for diagnostics. State fields are guarded by mu because
// async status accessors read them while the run goroutine advances.
type RunContext struct {
	mu sync.RWMutex

	// Input parameters
	Query       string
	InitialSeed map[string]interface{}
	Params      map[string]interface{}

	// Intermediate results
	Matches  []IntentMatch
	Plan     *TaskPlan
	PlanHit  bool
	Business *BusinessContext
	Report   *ExecutionReport
	Result   *AggregatedResult

	// Error handling
	LastError  error
	ErrorStage string

	// State management
	CurrentState PipelineState
	StateStack   []PipelineState

	// Timestamp tracking
	StartTime       time.Time
	EndTime         time.Time
	StateStartTimes map[PipelineState]time.Time
}

// NewRunContext creates a run context for a request text and seed context.
func NewRunContext(query string, seed map[string]interface{}, params map[string]interface{}) *RunContext {
	return &RunContext{
		Query:           query,
		InitialSeed:     seed,
		Params:          params,
		Business:        NewBusinessContext(seed),
		CurrentState:    StateInit,
		StateStack:      []PipelineState{},
		StartTime:       time.Now(),
		StateStartTimes: map[PipelineState]time.Time{StateInit: time.Now()},
	}
}

// PushState pushes the current state onto the stack and sets a new current state.
func (rc *RunContext) PushState(state PipelineState) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.StateStack = append(rc.StateStack, rc.CurrentState)
	rc.CurrentState = state
	rc.StateStartTimes[state] = time.Now()
}

// PopState pops the top state from the stack and sets it as the current state.
// Returns false if the stack is empty.
func (rc *RunContext) PopState() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if len(rc.StateStack) == 0 {
		return false
	}
	lastIdx := len(rc.StateStack) - 1
	rc.CurrentState = rc.StateStack[lastIdx]
	rc.StateStack = rc.StateStack[:lastIdx]
	rc.StateStartTimes[rc.CurrentState] = time.Now()
	return true
}

// State returns the current pipeline state.
func (rc *RunContext) State() PipelineState {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.CurrentState
}

// IsTerminal checks if the current state is Complete, Error or Cancelled.
func (rc *RunContext) IsTerminal() bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return terminalState(rc.CurrentState)
}

func terminalState(s PipelineState) bool {
	return s == StateComplete || s == StateError || s == StateCancelled
}

// advance moves to the next state unless the run already reached a terminal
// state from inside a transition.
func (rc *RunContext) advance(state PipelineState) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if terminalState(rc.CurrentState) {
		return
	}
	rc.CurrentState = state
	rc.StateStartTimes[state] = time.Now()
}

// SetError records the error and stage and transitions to StateError.
func (rc *RunContext) SetError(err error, stage string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.LastError = err
	rc.ErrorStage = stage
	rc.CurrentState = StateError
	rc.StateStartTimes[StateError] = time.Now()
}

// SetCancelled records the cancellation and transitions to StateCancelled.
func (rc *RunContext) SetCancelled(err error, stage string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.LastError = err
	rc.ErrorStage = stage
	rc.CurrentState = StateCancelled
	rc.StateStartTimes[StateCancelled] = time.Now()
}

// Complete marks the run as complete and sets the end time.
func (rc *RunContext) Complete() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.CurrentState = StateComplete
	rc.EndTime = time.Now()
	rc.StateStartTimes[StateComplete] = rc.EndTime
}

// Failure returns the recorded error and the stage it happened in.
func (rc *RunContext) Failure() (error, string) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.LastError, rc.ErrorStage
}

// LastTransition returns when the current state was entered.
func (rc *RunContext) LastTransition() time.Time {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.StateStartTimes[rc.CurrentState]
}

// TotalDuration returns the duration of the run so far.
func (rc *RunContext) TotalDuration() time.Duration {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if rc.CurrentState == StateComplete {
		return rc.EndTime.Sub(rc.StartTime)
	}
	return time.Since(rc.StartTime)
}

// StateTransition advances the run one stage: it returns the next state, or
// an error that sends the run to StateError.
type StateTransition func(ctx context.Context, eventBus eventbus.EventBus, rc *RunContext) (PipelineState, error)

// StateMachine drives one pipeline run through its stages.
type StateMachine struct {
	transitions map[PipelineState]StateTransition
	eventBus    eventbus.EventBus
}

// NewStateMachine creates a state machine without transitions registered.
func NewStateMachine(eventBus eventbus.EventBus) *StateMachine {
	return &StateMachine{
		transitions: make(map[PipelineState]StateTransition),
		eventBus:    eventBus,
	}
}

// RegisterTransition registers a state transition function.
func (sm *StateMachine) RegisterTransition(state PipelineState, transition StateTransition) {
	sm.transitions[state] = transition
}

// Execute runs the state machine until a terminal state. It returns the
// aggregated result of the run; per-tool failures never surface here, only
// cancellation and stage-level faults do.
func (sm *StateMachine) Execute(ctx context.Context, rc *RunContext) (*AggregatedResult, error) {
	for !rc.IsTerminal() {
		current := rc.State()

		select {
		case <-ctx.Done():
			rc.SetCancelled(ctx.Err(), string(current))
			return rc.Result, NewCancelledError(string(current), ctx.Err())
		default:
		}

		transition, exists := sm.transitions[current]
		if !exists {
			err := NewInternalError(string(current), fmt.Sprintf("no transition defined for state: %s", current), nil)
			rc.SetError(err, string(current))
			return rc.Result, err
		}

		nextState, err := transition(ctx, sm.eventBus, rc)
		if err != nil {
			stage := string(current)
			if err == context.Canceled || err == context.DeadlineExceeded {
				rc.SetCancelled(err, stage)
			} else if !rc.IsTerminal() {
				rc.SetError(err, stage)
			}
			continue
		}

		rc.advance(nextState)
	}

	if rc.State() == StateCancelled {
		cause, stage := rc.Failure()
		return rc.Result, NewCancelledError(stage, cause)
	}
	return rc.Result, nil
}
