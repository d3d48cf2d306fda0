package model

import (
	"errors"
	"fmt"
)

// AIStatus is the analysis lifecycle marker of an inbox record.
type AIStatus string

const (
	AIIdle       AIStatus = "idle"
	AIProcessing AIStatus = "processing"
	AIDone       AIStatus = "done"
	AIFailed     AIStatus = "failed"
)

// ParseAIStatus reports whether s names a known AI status.
func ParseAIStatus(s string) (AIStatus, bool) {
	switch st := AIStatus(s); st {
	case AIIdle, AIProcessing, AIDone, AIFailed:
		return st, true
	}
	return "", false
}

// Terminal reports whether no further transition is allowed.
func (s AIStatus) Terminal() bool {
	return s == AIDone || s == AIFailed
}

// ErrIllegalTransition is returned when an AI status change is not allowed.
var ErrIllegalTransition = errors.New("illegal ai status transition")

// CanTransition reports whether from -> to is a legal step:
// idle -> processing, processing -> done, processing -> failed.
func CanTransition(from, to AIStatus) bool {
	switch from {
	case AIIdle:
		return to == AIProcessing
	case AIProcessing:
		return to == AIDone || to == AIFailed
	}
	return false
}

// AIState carries the AI lifecycle together with the data each stage owns.
// Summary and Category are only meaningful when Status is AIDone, Reason only
// when Status is AIFailed.
type AIState struct {
	Status   AIStatus
	Summary  string
	Category Category
	Reason   string
}

func Idle() AIState       { return AIState{Status: AIIdle} }
func Processing() AIState { return AIState{Status: AIProcessing} }

func Done(summary string, category Category) AIState {
	return AIState{Status: AIDone, Summary: summary, Category: category}
}

func Failed(reason string) AIState {
	return AIState{Status: AIFailed, Reason: reason}
}

// Next validates the step from s to next and returns next.
func (s AIState) Next(next AIState) (AIState, error) {
	if !CanTransition(s.Status, next.Status) {
		return s, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.Status, next.Status)
	}
	return next, nil
}
