package store

import (
	"errors"
	"fmt"

	"carebridge/backend/internal/domain"
)

var (
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
	ErrStaleState          = errors.New("stale state")
	ErrUnavailable         = errors.New("store unavailable")
)

// DomainError maps store failures onto the domain error taxonomy. subject
// names the missing record in NotFound messages. Errors that already carry a
// domain kind pass through unchanged.
func DomainError(err error, subject string) error {
	switch {
	case err == nil:
		return nil
	case domain.KindOf(err) != nil:
		return err
	case errors.Is(err, ErrNotFound):
		return domain.Errorf(domain.ErrNotFound, "%s not found", subject)
	case errors.Is(err, ErrIdempotencyConflict):
		return domain.NewError(domain.ErrConflict, "idempotency key was already used for a different booking")
	case errors.Is(err, ErrConflict):
		return domain.NewError(domain.ErrConflict, "the requested time conflicts with an existing appointment")
	case errors.Is(err, ErrStaleState):
		return domain.Errorf(domain.ErrInvalidStateTransition, "%s was changed by another request", subject)
	case errors.Is(err, ErrUnavailable):
		return fmt.Errorf("%w: %w", domain.NewError(domain.ErrUnavailable, "the scheduling store is temporarily unavailable"), err)
	default:
		return err
	}
}
