package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor context")

	// Access tokens
	ErrTokenNotFound    = fmt.Errorf("access token not found: %w", ErrNotFound)
	ErrTokenAlreadyUsed = errors.New("access token already used")
	ErrTokenExpired     = errors.New("access token expired")

	// Governance
	ErrProposalNotFound  = fmt.Errorf("proposal not found: %w", ErrNotFound)
	ErrVoteNotFound      = fmt.Errorf("vote not found: %w", ErrNotFound)
	ErrIneligibleVoter   = errors.New("voter tier is not eligible to vote")
	ErrProposalNotActive = errors.New("proposal is not active")
	ErrDeadlinePassed    = errors.New("voting deadline has passed")
	ErrDuplicateVote     = errors.New("voter already voted on this proposal")
)

// ValidationError lists the request fields that were missing or malformed.
type ValidationError struct {
	Fields []string
}

func NewValidationError(fields ...string) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid argument"
	}
	return "missing or invalid fields: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidArgument }

// RedemptionConflict is returned when a token was already consumed.
// It reports who redeemed it and when.
type RedemptionConflict struct {
	RedeemerID     *string
	RedeemerHandle *string
	UsedAt         *time.Time
}

func (e *RedemptionConflict) Error() string {
	if e.UsedAt != nil {
		return fmt.Sprintf("%s at %s", ErrTokenAlreadyUsed, e.UsedAt.UTC().Format(time.RFC3339))
	}
	return ErrTokenAlreadyUsed.Error()
}

func (e *RedemptionConflict) Unwrap() error { return ErrTokenAlreadyUsed }
