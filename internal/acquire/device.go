package acquire

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"os/exec"
	"strings"
	"sync"
)

// facingPlaceholder is replaced by the facing value in CommandDevice arguments
const facingPlaceholder = "{facing}"

// NoDevice is used when no capture hardware is configured
type NoDevice struct{}

// Open always fails
func (NoDevice) Open(ctx context.Context, facing Facing) (Stream, error) {
	return nil, &AcquisitionError{Op: "open", Err: ErrNoDevice}
}

// CommandDevice captures stills by running an external tool that writes one
// encoded image to stdout, e.g.
//
//	ffmpeg -f v4l2 -i /dev/video0 -frames:v 1 -f image2pipe -vcodec png -
type CommandDevice struct {
	Path string
	Args []string
}

// NewCommandDevice parses a capture command line. Arguments are split on
// whitespace; "{facing}" is substituted with the requested direction.
func NewCommandDevice(command string) (*CommandDevice, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("capture command is empty")
	}
	return &CommandDevice{Path: fields[0], Args: fields[1:]}, nil
}

// Open resolves the capture tool. Nothing runs until a frame is requested.
func (d *CommandDevice) Open(ctx context.Context, facing Facing) (Stream, error) {
	path, err := exec.LookPath(d.Path)
	if err != nil {
		return nil, &AcquisitionError{Op: "open", Err: fmt.Errorf("locating capture command: %w", err)}
	}

	args := make([]string, len(d.Args))
	for i, arg := range d.Args {
		args[i] = strings.ReplaceAll(arg, facingPlaceholder, string(facing))
	}

	return &commandStream{path: path, args: args}, nil
}

type commandStream struct {
	mu      sync.Mutex
	path    string
	args    []string
	stopped bool
}

func (s *commandStream) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return nil, ErrStopped
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.path, s.args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("running capture command: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decoding captured frame: %w", err)
	}
	return img, nil
}

func (s *commandStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}
