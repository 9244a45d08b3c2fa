package view

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/zombor/ecoscan/internal/acquire"
	"github.com/zombor/ecoscan/internal/history"
	"github.com/zombor/ecoscan/internal/scan"
	"github.com/zombor/ecoscan/internal/upload"
)

// InvalidImageMessage is shown when the service did not recognize the image
const InvalidImageMessage = "The uploaded image is invalid. Please try again with a different image."

// ErrBusy is returned when an upload is requested while one is in flight
var ErrBusy = errors.New("an upload is already in progress")

// BannerKind tells the page which kind of problem a banner reports
type BannerKind string

const (
	BannerAcquisition BannerKind = "acquisition"
	BannerTransport   BannerKind = "transport"
	BannerInvalid     BannerKind = "invalid"
)

// Banner is a dismissible message on the page
type Banner struct {
	Kind    BannerKind `json:"kind"`
	Message string     `json:"message"`
}

// Recorder is the part of the history store the session uses
type Recorder interface {
	Record(ctx context.Context, resp scan.Response) (history.ScanEntry, error)
	Entries() []history.ScanEntry
}

// State is an immutable snapshot of the page
type State struct {
	Mode         acquire.Mode   `json:"mode"`
	Facing       acquire.Facing `json:"facing"`
	CameraActive bool           `json:"camera_active"`
	Busy         bool           `json:"busy"`
	HasImage     bool           `json:"has_image"`
	HasResult    bool           `json:"has_result"`
	Banner       *Banner        `json:"banner,omitempty"`
	Panels       Panels         `json:"panels"`
}

// Session holds the state of the single page: input mode, busy flag, the
// banner and the response on screen. Uploads run without the lock held so the
// busy flag is observable while one is in flight.
type Session struct {
	uploader  upload.Uploader
	history   Recorder
	camera    *acquire.Camera
	decorator *Decorator

	mu     sync.Mutex
	mode   acquire.Mode
	busy   bool
	image  *acquire.Image
	banner *Banner
	result *scan.Result
	cards  []CouponCard
}

// NewSession creates a Session in file mode with nothing on screen
func NewSession(uploader upload.Uploader, recorder Recorder, camera *acquire.Camera, decorator *Decorator) *Session {
	if camera == nil {
		camera = acquire.NewCamera(nil)
	}
	if decorator == nil {
		decorator = NewDecorator(nil)
	}
	return &Session{
		uploader:  uploader,
		history:   recorder,
		camera:    camera,
		decorator: decorator,
		mode:      acquire.ModeFile,
	}
}

// Submit uploads img and applies the outcome. Transport and decoding failures
// become a transport banner and clear any response; a rejected image becomes
// an invalid banner and is not recorded; a valid response is recorded and
// shown. The returned error is the upload error, already reflected in State.
func (s *Session) Submit(ctx context.Context, img acquire.Image) (scan.Result, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return scan.Result{}, ErrBusy
	}
	s.busy = true
	s.banner = nil
	s.image = &img
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	resp, err := s.uploader.Upload(ctx, img)
	if err != nil {
		slog.Error("Error uploading image", "filename", img.Filename, "error", err)
		s.mu.Lock()
		s.result = nil
		s.cards = nil
		s.banner = &Banner{Kind: BannerTransport, Message: upload.TransportMessage}
		s.mu.Unlock()
		return scan.Result{}, err
	}

	result := scan.Evaluate(*resp)
	if !result.IsValid() {
		slog.Info("Image rejected by service", "filename", img.Filename, "reason", result.Reason)
		s.mu.Lock()
		s.result = nil
		s.cards = nil
		s.banner = &Banner{Kind: BannerInvalid, Message: InvalidImageMessage}
		s.mu.Unlock()
		return result, nil
	}

	if _, err := s.history.Record(ctx, result.Response); err != nil {
		var persistErr *history.PersistenceError
		if !errors.As(err, &persistErr) {
			slog.Error("Failed to record scan", "error", err)
		}
	}

	cards := s.decorator.Decorate(result.Response.Coupons)
	s.mu.Lock()
	s.result = &result
	s.cards = cards
	s.mu.Unlock()
	return result, nil
}

// SetCamera switches between the camera and the file source. Turning the
// camera off always releases the stream. When the camera cannot be opened the
// session falls back to file mode and shows an acquisition banner.
func (s *Session) SetCamera(ctx context.Context, enabled bool, facing acquire.Facing) error {
	if !enabled {
		s.camera.Close()
		s.mu.Lock()
		s.mode = acquire.ModeFile
		s.mu.Unlock()
		return nil
	}

	if err := s.camera.Open(ctx, facing); err != nil {
		s.acquisitionFailed(err)
		return err
	}

	s.mu.Lock()
	s.mode = acquire.ModeCamera
	s.banner = nil
	s.mu.Unlock()
	return nil
}

// SwitchFacing re-acquires the camera facing the other direction
func (s *Session) SwitchFacing(ctx context.Context) error {
	s.mu.Lock()
	mode := s.mode
	s.mu.Unlock()
	if mode != acquire.ModeCamera {
		return &acquire.AcquisitionError{Op: "switch", Err: acquire.ErrNotActive}
	}

	if err := s.camera.SwitchFacing(ctx); err != nil {
		s.acquisitionFailed(err)
		return err
	}
	return nil
}

// Capture grabs a still from the camera and submits it
func (s *Session) Capture(ctx context.Context) (scan.Result, error) {
	s.mu.Lock()
	busy := s.busy
	s.mu.Unlock()
	if busy {
		return scan.Result{}, ErrBusy
	}

	img, err := s.camera.Capture(ctx)
	if err != nil {
		s.acquisitionFailed(err)
		return scan.Result{}, err
	}
	return s.Submit(ctx, img)
}

// Preview returns the live camera frame as JPEG
func (s *Session) Preview(ctx context.Context) ([]byte, error) {
	return s.camera.Preview(ctx)
}

func (s *Session) acquisitionFailed(err error) {
	slog.Warn("Camera unavailable", "error", err)
	s.camera.Close()
	s.mu.Lock()
	s.mode = acquire.ModeFile
	s.banner = &Banner{Kind: BannerAcquisition, Message: acquire.AcquisitionMessage}
	s.mu.Unlock()
}

// Image returns the last submitted image, if any
func (s *Session) Image() (acquire.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image == nil {
		return acquire.Image{}, false
	}
	return *s.image, true
}

// DismissError clears the banner and returns to the upload view
func (s *Session) DismissError() {
	s.Reset()
}

// Reset returns the page to its initial state: no image, no banner, no
// response. History and input mode are kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = nil
	s.banner = nil
	s.result = nil
	s.cards = nil
}

// Snapshot returns the current state with derived panels
func (s *Session) Snapshot() State {
	s.mu.Lock()
	state := State{
		Mode:      s.mode,
		Busy:      s.busy,
		HasImage:  s.image != nil,
		HasResult: s.result != nil,
	}
	if s.banner != nil {
		banner := *s.banner
		state.Banner = &banner
	}
	result := s.result
	cards := s.cards
	s.mu.Unlock()

	state.Facing = s.camera.Facing()
	state.CameraActive = s.camera.Active()
	state.Panels = Derive(result, cards, s.history.Entries())
	return state
}

// Close releases the camera
func (s *Session) Close() {
	s.camera.Close()
}
