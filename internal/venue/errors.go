package venue

import (
	"errors"
	"fmt"
)

// ErrDepositNotSeen is returned by FindDeposit while the venue has not yet
// recorded the inbound transaction.
var ErrDepositNotSeen = errors.New("deposit not seen")

// Error wraps a venue API failure with enough context to decide on retries.
type Error struct {
	Venue string
	Op    string
	Code  int64 // venue API error code, zero when unknown
	Err   error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s %s: code %d: %v", e.Venue, e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Venue, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Binance API codes signalling request throttling.
const (
	codeTooManyRequests = -1003
	codeTooManyOrders   = -1015
)

// RateLimited reports whether the failure was the venue throttling us,
// which is worth backing off and retrying.
func (e *Error) RateLimited() bool {
	return e.Code == codeTooManyRequests || e.Code == codeTooManyOrders
}

// IsRateLimited reports whether err is a venue throttling failure.
func IsRateLimited(err error) bool {
	var ve *Error
	return errors.As(err, &ve) && ve.RateLimited()
}

// NewRateLimited builds a throttling error, for stubs and tests.
func NewRateLimited(venueName, op string) *Error {
	return &Error{Venue: venueName, Op: op, Code: codeTooManyRequests, Err: errors.New("too many requests")}
}
