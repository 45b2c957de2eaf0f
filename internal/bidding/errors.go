package bidding

import "errors"

var (
	// ErrMissingExchange is returned by Build when no exchange was set.
	ErrMissingExchange = errors.New("bid response: exchange is required")
	// ErrMissingHTTPResponse is returned by Build when no envelope was set.
	ErrMissingHTTPResponse = errors.New("bid response: http response is required")
	// ErrResponseModeConflict is returned when a payload is requested for a
	// protocol other than the one the response already committed to.
	ErrResponseModeConflict = errors.New("bid response: response mode conflict")
)
