package service

import (
	"errors"
	"fmt"

	"election-backend/models"
)

// InvalidTransitionError reports a command rejected by the state machine.
// The message names the specific unmet precondition, not a generic failure.
type InvalidTransitionError struct {
	From    models.ElectionStatus
	Command string
	Reason  string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s while election is %s: %s", e.Command, e.From, e.Reason)
}

// ValidationError reports malformed or duplicate command input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotAuthorizedError reports a tally attempt without both authority
// secrets validated.
type NotAuthorizedError struct {
	Reason string
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("not authorized: %s", e.Reason)
}

// DecryptionError reports a ballot that could not be decrypted. Individual
// failures are non-fatal: the record is excluded from the tally and counted
// in the audit line.
type DecryptionError struct {
	VoteID string
	Reason string
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("failed to decrypt vote %s: %s", e.VoteID, e.Reason)
}

func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotAuthorized(err error) bool {
	var target *NotAuthorizedError
	return errors.As(err, &target)
}

func IsDecryption(err error) bool {
	var target *DecryptionError
	return errors.As(err, &target)
}
