package model

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionExpired is returned when a call would carry a token past its expiry.
	ErrSessionExpired = errors.New("session expired")

	// ErrBackendUnreachable is returned when the vendor backend cannot be reached.
	// It triggers offline fallback rather than a hard failure.
	ErrBackendUnreachable = errors.New("backend unreachable")

	// ErrProviderNotConnected is returned when a cloud operation targets a
	// provider that is not in the Connected state.
	ErrProviderNotConnected = errors.New("provider not connected")

	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoDraft is returned when no draft is currently held.
	ErrNoDraft = errors.New("no draft")
)

// UnsupportedProviderError is returned by the registry for unknown provider ids.
type UnsupportedProviderError struct {
	ID ProviderID
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported provider %q", string(e.ID))
}

// ProviderCallError wraps a network or HTTP failure from one specific provider route.
type ProviderCallError struct {
	Provider ProviderID
	Op       string
	Status   int // HTTP status, 0 for transport errors
	Err      error
}

func (e *ProviderCallError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s: %s: status %d", e.Provider, e.Op, e.Status)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderCallError) Unwrap() error {
	return e.Err
}

// SaveLeg names which half of a save operation failed.
type SaveLeg string

const (
	SaveLegLocal SaveLeg = "local"
	SaveLegCloud SaveLeg = "cloud"
)

// SaveError reports a failed save with enough detail for the caller to know
// which leg failed. A cloud-leg failure leaves the local copy authoritative.
type SaveError struct {
	Leg SaveLeg
	Err error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save failed (%s): %v", e.Leg, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// TaskError reports a generation task that reached the failed state.
type TaskError struct {
	TaskID  string
	Message string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Message)
}

// ParseError reports malformed stored or received content.
type ParseError struct {
	Source string // "store", "backend", provider id
	Key    string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error [%s] %s: %v", e.Source, e.Key, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
