package store

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dotcommander/scout/internal/scoutmodel"
)

// ErrClaimContention is returned when a worker fails to claim a queued run
// because another worker already holds it.
var ErrClaimContention = errors.New("run already claimed by another worker")

// ErrClaimNotOwned is returned when a run-progress update is attempted by a
// worker that does not hold the run's claim.
var ErrClaimNotOwned = errors.New("run claim is not owned by this worker")

// RecoverableError is an alias for scoutmodel.RecoverableError, retained so
// callers can reference store.RecoverableError without importing scoutmodel
// directly.
type RecoverableError = scoutmodel.RecoverableError

// RunClaimContentionError is returned when a queued run is claimed by a
// second worker after another worker already owns it.
type RunClaimContentionError struct {
	RunID        string
	CurrentOwner string
	RequestedBy  string
}

func (e *RunClaimContentionError) Error() string { return "run already claimed by another worker" }
func (e *RunClaimContentionError) ErrorCode() string { return "CLAIM_CONTENTION" }
func (e *RunClaimContentionError) Context() map[string]string {
	return map[string]string{
		"run_id":        e.RunID,
		"current_owner": e.CurrentOwner,
		"requested_by":  e.RequestedBy,
	}
}
func (e *RunClaimContentionError) SuggestedAction() string {
	return fmt.Sprintf("scout run get --id %s", e.RunID)
}
func (e *RunClaimContentionError) Is(target error) bool { return target == ErrClaimContention }

// RunClaimNotOwnedError is returned when a worker tries to update a run's
// progress without holding its claim.
type RunClaimNotOwnedError struct {
	RunID       string
	RequestedBy string
}

func (e *RunClaimNotOwnedError) Error() string { return "run claim is not owned by this worker" }
func (e *RunClaimNotOwnedError) ErrorCode() string { return "CLAIM_NOT_OWNED" }
func (e *RunClaimNotOwnedError) Context() map[string]string {
	return map[string]string{
		"run_id":       e.RunID,
		"requested_by": e.RequestedBy,
	}
}
func (e *RunClaimNotOwnedError) SuggestedAction() string {
	return fmt.Sprintf("scout run claim --id %s --worker %s", e.RunID, e.RequestedBy)
}
func (e *RunClaimNotOwnedError) Is(target error) bool { return target == ErrClaimNotOwned }

// VersionConflictError replaces ErrVersionConflict with structured context.
type VersionConflictError struct {
	Entity  string
	ID      string
	Version int
}

func (e *VersionConflictError) Error() string {
	return "version conflict: record was modified by another process"
}
func (e *VersionConflictError) ErrorCode() string { return "VERSION_CONFLICT" }
func (e *VersionConflictError) Context() map[string]string {
	return map[string]string{
		"entity":  e.Entity,
		"id":      e.ID,
		"version": strconv.Itoa(e.Version),
	}
}
func (e *VersionConflictError) SuggestedAction() string {
	return "retry the operation with a new --request-id"
}
func (e *VersionConflictError) Is(target error) bool { return target == ErrVersionConflict }

// IdempotencyInProgressError replaces ErrIdempotencyInProgress with structured context.
type IdempotencyInProgressError struct {
	AgentName string
	RequestID string
	Command   string
}

func (e *IdempotencyInProgressError) Error() string { return "idempotency in progress" }
func (e *IdempotencyInProgressError) ErrorCode() string { return "IDEMPOTENCY_IN_PROGRESS" }
func (e *IdempotencyInProgressError) Context() map[string]string {
	return map[string]string{
		"agent_name": e.AgentName,
		"request_id": e.RequestID,
		"command":    e.Command,
	}
}
func (e *IdempotencyInProgressError) SuggestedAction() string {
	return "wait and retry, or use a new --request-id"
}
func (e *IdempotencyInProgressError) Is(target error) bool {
	return target == ErrIdempotencyInProgress
}
