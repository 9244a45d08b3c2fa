package upload

import "fmt"

// TransportMessage is shown to the user for any transport failure
const TransportMessage = "Failed to upload image. Please check your internet connection and try again."

// TransportError covers non-2xx responses and network failures. StatusCode is
// zero when no response was received.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload failed: HTTP error! status: %d", e.StatusCode)
	}
	return fmt.Sprintf("upload failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Message returns the user-facing text with the retry suggestion
func (e *TransportError) Message() string {
	return TransportMessage
}
