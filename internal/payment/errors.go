package payment

import "fmt"

// UnconfirmedError is returned when the gateway may have opened a checkout for Reference
// without confirming it. The payment must be settled by verifying Reference later.
type UnconfirmedError struct {
	Reference string
	Err       error
}

func (e *UnconfirmedError) Error() string {
	return fmt.Sprintf("payment %s: gateway outcome unknown, verify later: %v", e.Reference, e.Err)
}

func (e *UnconfirmedError) Unwrap() error {
	return e.Err
}
