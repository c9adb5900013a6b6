package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrUnexpectedPayment = errors.New("payment not expected for a non-positive total")
	ErrUnknownVoucher    = errors.New("unknown voucher code")
)

// InsufficientPaymentError reports a cart whose tendered payments do not
// cover its total.
type InsufficientPaymentError struct {
	Total int64
	Paid  int64
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("insufficient payment: total %d, paid %d", e.Total, e.Paid)
}

func (e *InsufficientPaymentError) Missing() int64 {
	return e.Total - e.Paid
}

// Invalid wraps ErrValidation with a field level message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
