package acquire

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
)

const (
	captureFilename    = "captured_image.jpg"
	captureContentType = "image/jpeg"
	captureQuality     = 90
)

// Facing is the camera direction, named after the browser facingMode values
type Facing string

const (
	FacingFront Facing = "user"
	FacingBack  Facing = "environment"
)

// ParseFacing accepts "user"/"front" and "environment"/"back"
func ParseFacing(s string) (Facing, error) {
	switch s {
	case "user", "front":
		return FacingFront, nil
	case "environment", "back", "":
		return FacingBack, nil
	default:
		return "", fmt.Errorf("unknown camera facing %q", s)
	}
}

// Opposite returns the other camera direction
func (f Facing) Opposite() Facing {
	if f == FacingFront {
		return FacingBack
	}
	return FacingFront
}

// Device opens live streams from camera hardware
type Device interface {
	Open(ctx context.Context, facing Facing) (Stream, error)
}

// Stream is an open camera feed. Stop releases the hardware and must be safe
// to call more than once.
type Stream interface {
	Frame(ctx context.Context) (image.Image, error)
	Stop()
}

// Camera owns at most one open stream at a time
type Camera struct {
	mu     sync.Mutex
	device Device
	stream Stream
	facing Facing
}

// NewCamera creates a closed Camera on top of device
func NewCamera(device Device) *Camera {
	if device == nil {
		device = NoDevice{}
	}
	return &Camera{device: device, facing: FacingBack}
}

// Open starts a stream in the given direction. Any stream already open is
// stopped first, so two streams never coexist.
func (c *Camera) Open(ctx context.Context, facing Facing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openLocked(ctx, facing)
}

func (c *Camera) openLocked(ctx context.Context, facing Facing) error {
	c.stopLocked()
	c.facing = facing

	stream, err := c.device.Open(ctx, facing)
	if err != nil {
		slog.Warn("Failed to open camera", "facing", facing, "error", err)
		return asAcquisitionError("open", err)
	}
	c.stream = stream
	slog.Debug("Camera opened", "facing", facing)
	return nil
}

// SwitchFacing tears the stream down and re-acquires it facing the other way
func (c *Camera) SwitchFacing(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openLocked(ctx, c.facing.Opposite())
}

// Capture grabs one still frame at the stream's native resolution and
// encodes it as a JPEG image ready for upload.
func (c *Camera) Capture(ctx context.Context) (Image, error) {
	data, err := c.snapshot(ctx)
	if err != nil {
		return Image{}, err
	}
	return Image{
		Filename:    captureFilename,
		ContentType: captureContentType,
		Data:        data,
	}, nil
}

// Preview returns the current frame as JPEG bytes
func (c *Camera) Preview(ctx context.Context) ([]byte, error) {
	return c.snapshot(ctx)
}

// snapshot reads the frame outside c.mu; Close and SwitchFacing may run
// meanwhile. A stream stopped before the read reports ErrStopped.
func (c *Camera) snapshot(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()

	if stream == nil {
		return nil, &AcquisitionError{Op: "capture", Err: ErrNotActive}
	}

	frame, err := stream.Frame(ctx)
	if err != nil {
		return nil, asAcquisitionError("capture", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: captureQuality}); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return buf.Bytes(), nil
}

// Close stops the stream if one is open
func (c *Camera) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Camera) stopLocked() {
	if c.stream != nil {
		c.stream.Stop()
		c.stream = nil
		slog.Debug("Camera stopped", "facing", c.facing)
	}
}

// Active reports whether a stream is open
func (c *Camera) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

// Facing returns the direction of the current or last stream
func (c *Camera) Facing() Facing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.facing
}

func asAcquisitionError(op string, err error) error {
	if _, ok := err.(*AcquisitionError); ok {
		return err
	}
	return &AcquisitionError{Op: op, Err: err}
}
