package apperrors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ErrInvalidState indicates that an operation is not allowed in the resource's current state.
var ErrInvalidState = errors.New("invalid state")

// ErrExternalService indicates that a rate, payment, bank or blockchain collaborator failed.
var ErrExternalService = errors.New("external service error")

// ReserveShortfallError is returned when a batch is below the settlement provider minimum.
// It carries the data an operator needs to top up the batch.
type ReserveShortfallError struct {
	MinimumEur  decimal.Decimal
	RequiredEur decimal.Decimal
}

func (e *ReserveShortfallError) Error() string {
	return fmt.Sprintf("reserve shortfall: minimum %s EUR, %s EUR required", e.MinimumEur.StringFixed(2), e.RequiredEur.StringFixed(2))
}

// Is makes a shortfall match ErrValidation so callers can treat it as a rejected input.
func (e *ReserveShortfallError) Is(target error) bool {
	return target == ErrValidation
}

// NewExternalServiceError wraps a collaborator failure with the name of the collaborator.
func NewExternalServiceError(service string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrExternalService, service, err)
}

// ErrNoPendingDonations indicates that a claim found fewer pending donations than requested.
var ErrNoPendingDonations = fmt.Errorf("%w: donations are not all pending", ErrValidation)
