package acquire

import (
	"errors"
	"fmt"
)

// AcquisitionMessage is shown to the user when the camera cannot be used
const AcquisitionMessage = "Failed to access camera. Please check your permissions."

var (
	// ErrNoDevice is returned when no capture device is configured
	ErrNoDevice = errors.New("no camera device")
	// ErrNotActive is returned when capturing without an open stream
	ErrNotActive = errors.New("camera is not active")
	// ErrStopped is returned when reading from a stream after Stop
	ErrStopped = errors.New("stream stopped")
)

// AcquisitionError reports a camera permission or device failure. The file
// source stays usable when one occurs.
type AcquisitionError struct {
	Op  string
	Err error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("camera %s: %v", e.Op, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}
