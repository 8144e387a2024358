package domain

import "errors"

// RetriableError marks errors that a periodic task may safely retry on its
// next cycle from unchanged state.
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable.
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// FeedError represents a price-feed session failure. Socket-level failures
// are retriable (the client reconnects); protocol rejects are not.
type FeedError struct {
	Op        string // "dial", "logon", "read", "write"
	Err       error
	Retriable bool
}

func (e *FeedError) Error() string {
	return "feed " + e.Op + ": " + e.Err.Error()
}

func (e *FeedError) IsRetriable() bool { return e.Retriable }

func (e *FeedError) Unwrap() error { return e.Err }

// NewFeedError creates a retriable feed error.
func NewFeedError(op string, err error) *FeedError {
	return &FeedError{Op: op, Err: err, Retriable: true}
}

// NewFatalFeedError creates a non-retriable feed error.
func NewFatalFeedError(op string, err error) *FeedError {
	return &FeedError{Op: op, Err: err, Retriable: false}
}

var (
	// ErrStaleQuote is returned when an execution path needs a fresh quote
	// and the feed has gone quiet past MaxQuoteAge.
	ErrStaleQuote = errors.New("quote is stale")

	// ErrInsufficientMargin rejects a fill whose required margin exceeds the
	// account's free margin.
	ErrInsufficientMargin = errors.New("insufficient free margin")

	// ErrOrderNotPending is returned when acting on an order that already
	// reached a terminal status.
	ErrOrderNotPending = errors.New("order is not pending")

	// ErrPositionNotOpen is returned when closing a position that already
	// left OPEN state.
	ErrPositionNotOpen = errors.New("position is not open")

	// ErrAccountNotActive rejects trading on suspended or closed accounts.
	ErrAccountNotActive = errors.New("account is not active")

	// ErrInvalidOrder is returned for malformed placement requests.
	ErrInvalidOrder = errors.New("invalid order request")

	// ErrNotFound is the generic missing-entity error.
	ErrNotFound = errors.New("not found")
)
