package kommo

import "fmt"

// TransportError is returned for non-2xx responses other than 401/403/429.
type TransportError struct {
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("kommo: unexpected status %d: %s", e.Status, e.Body)
}

// AuthError is returned for 401/403 responses. It aborts the sync for the
// tenant instead of being retried.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("kommo: authorization failed (status %d): %s", e.Status, e.Body)
}

// DecodeError is returned when a success response carries a body that cannot
// be decoded into the expected shape. DELETE responses are exempt: an empty
// or undecodable body on a 2xx DELETE is success.
type DecodeError struct {
	Err  error
	Body string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("kommo: failed to decode response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
