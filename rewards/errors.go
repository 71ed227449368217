package rewards

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error taxonomy shared by the reward pipeline. Match with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrInfeasible = errors.New("infeasible allocation")
	ErrStorage    = errors.New("storage failure")
	ErrLedger     = errors.New("ledger unavailable")

	ErrAlreadyExists     error = &classError{msg: "already exists", class: ErrConflict}
	ErrNotReady          error = &classError{msg: "payout height not reached", class: ErrValidation}
	ErrNoEligibleHolders error = &classError{msg: "no eligible holders", class: ErrInfeasible}
)

type classError struct {
	msg   string
	class error
}

func (e *classError) Error() string {
	return e.msg
}

func (e *classError) Is(target error) bool {
	return target == e.class
}

// StorageError is returned when the durable store itself fails. It is the
// only unrecoverable condition in the pipeline.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %s", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// Classify passes pipeline errors through untouched and marks anything
// else coming out of a store transaction as a StorageError.
func Classify(op string, err error) error {

	if err == nil {
		return nil
	}

	for _, known := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrInfeasible, ErrStorage} {
		if errors.Is(err, known) {
			return err
		}
	}

	return &StorageError{Op: op, Err: err}
}

func validationErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrValidation, format, args...)
}
