package domain

import "errors"

var (
	// ErrAlreadyProcessed is returned when a caller attempts a transition
	// that is invalid for the topic's current status, e.g. accepting a
	// topic that is no longer pending. It is a client error and must not
	// be retried.
	ErrAlreadyProcessed = errors.New("topic already processed")

	// ErrTopicNotFound is returned when the referenced topic does not
	// exist or belongs to another user.
	ErrTopicNotFound = errors.New("topic not found")

	// ErrTaskNotFound is returned when the referenced research task does
	// not exist.
	ErrTaskNotFound = errors.New("research task not found")
)

// Failure reasons stored on terminally failed tasks.
const (
	ReasonTimeout         = "Timeout"
	ReasonExecutionFailed = "ExecutionFailed"
)
