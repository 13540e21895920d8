package server

import (
	"fmt"
	"sync"

	"github.com/ham-and/social-graph-2802/internal/graph"
)

const (
	suggestionTaskPrefix          = "task-"
	suggestionTaskStatusRunning   = suggestionTaskStatus("running")
	suggestionTaskStatusCompleted = suggestionTaskStatus("completed")
	suggestionTaskStatusFailed    = suggestionTaskStatus("failed")
	// A superseded task ran to completion but a newer analysis or run
	// arrived first, so its results were discarded.
	suggestionTaskStatusSuperseded = suggestionTaskStatus("superseded")
)

// suggestionTaskStatus represents the lifecycle state of a suggestion run.
type suggestionTaskStatus string

// suggestionTask captures state for one asynchronous suggestion run.
type suggestionTask struct {
	identifier string
	total      int
	completed  int
	status     suggestionTaskStatus
	failure    string
	result     *graph.SuggestionResult
}

// suggestionTaskSnapshot copies the public portions of a task for serialization.
type suggestionTaskSnapshot struct {
	Identifier string
	Total      int
	Completed  int
	Status     suggestionTaskStatus
	Failure    string
	Result     *graph.SuggestionResult
}

// suggestionTaskTracker tracks active and completed suggestion runs.
type suggestionTaskTracker struct {
	mutex        sync.Mutex
	tasks        map[string]*suggestionTask
	nextSequence int
}

// newSuggestionTaskTracker constructs a tracker with empty state.
func newSuggestionTaskTracker() *suggestionTaskTracker {
	return &suggestionTaskTracker{tasks: make(map[string]*suggestionTask)}
}

// CreateTask registers a new suggestion run and returns its snapshot. The
// total is unknown until the run reports its first progress update.
func (tracker *suggestionTaskTracker) CreateTask() suggestionTaskSnapshot {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	tracker.nextSequence++
	identifier := fmt.Sprintf("%s%d", suggestionTaskPrefix, tracker.nextSequence)
	task := &suggestionTask{
		identifier: identifier,
		status:     suggestionTaskStatusRunning,
	}
	tracker.tasks[identifier] = task
	return tracker.snapshotTask(task)
}

// RecordProgress updates a task's processed/total counters.
func (tracker *suggestionTaskTracker) RecordProgress(taskIdentifier string, progress graph.SuggestionProgress) {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	task, exists := tracker.tasks[taskIdentifier]
	if !exists {
		return
	}
	task.completed = progress.Processed
	task.total = progress.Total
}

// CompleteTask installs the final result of a run, or records its failure.
// committed reports whether the session accepted the result; a run whose
// commit was rejected is marked superseded.
func (tracker *suggestionTaskTracker) CompleteTask(taskIdentifier string, result *graph.SuggestionResult, runErr error, committed bool) {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	task, exists := tracker.tasks[taskIdentifier]
	if !exists {
		return
	}
	switch {
	case runErr != nil:
		task.status = suggestionTaskStatusFailed
		task.failure = runErr.Error()
	case !committed:
		task.status = suggestionTaskStatusSuperseded
	default:
		task.status = suggestionTaskStatusCompleted
		task.result = result
		task.completed = result.Processed
		if task.total < task.completed {
			task.total = task.completed
		}
	}
}

// TaskSnapshot returns a copy of the task state for external observers.
func (tracker *suggestionTaskTracker) TaskSnapshot(taskIdentifier string) (suggestionTaskSnapshot, bool) {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	task, exists := tracker.tasks[taskIdentifier]
	if !exists {
		return suggestionTaskSnapshot{}, false
	}
	return tracker.snapshotTask(task), true
}

func (tracker *suggestionTaskTracker) snapshotTask(task *suggestionTask) suggestionTaskSnapshot {
	return suggestionTaskSnapshot{
		Identifier: task.identifier,
		Total:      task.total,
		Completed:  task.completed,
		Status:     task.status,
		Failure:    task.failure,
		Result:     task.result,
	}
}
