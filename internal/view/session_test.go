package view

import (
	"context"
	"errors"
	"image"
	"net/http"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/ecoscan/internal/acquire"
	"github.com/zombor/ecoscan/internal/history"
	"github.com/zombor/ecoscan/internal/scan"
	"github.com/zombor/ecoscan/internal/upload"
)

// memoryStorage is an in-memory history.Storage
type memoryStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{data: make(map[string][]byte)}
}

func (m *memoryStorage) Load(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	if !ok {
		return nil, history.ErrNotFound
	}
	return data, nil
}

func (m *memoryStorage) Save(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	return nil
}

func (m *memoryStorage) Close() error { return nil }

// deniedDevice simulates a camera permission prompt being refused
type deniedDevice struct{}

func (deniedDevice) Open(ctx context.Context, facing acquire.Facing) (acquire.Stream, error) {
	return nil, errors.New("NotAllowedError: Permission denied")
}

// stillDevice always returns the same frame
type stillDevice struct {
	opens int
}

func (d *stillDevice) Open(ctx context.Context, facing acquire.Facing) (acquire.Stream, error) {
	d.opens++
	return &stillStream{}, nil
}

type stillStream struct{}

func (stillStream) Frame(ctx context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 32, 24)), nil
}

func (stillStream) Stop() {}

// blockingUploader holds the upload until released
type blockingUploader struct {
	started chan struct{}
	release chan struct{}
	resp    *scan.Response
}

func (b *blockingUploader) Upload(ctx context.Context, img acquire.Image) (*scan.Response, error) {
	close(b.started)
	<-b.release
	return b.resp, nil
}

func okBody(model string, savings float64) map[string]interface{} {
	return map[string]interface{}{
		"image":           "ok",
		"total_footprint": "12.3",
		"carbonfootprint": map[string]string{"plastic": "2kg"},
		"coupons":         []interface{}{},
		"coupontotal":     "0",
		"ecosavings":      savings,
		"modelused":       model,
	}
}

var _ = Describe("Session", func() {
	var (
		ctx     context.Context
		server  *ghttp.Server
		store   *history.Store
		camera  *acquire.Camera
		session *Session
		dog     acquire.Image
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = ghttp.NewServer()
		store = history.Open(newMemoryStorage(), history.Options{})
		camera = acquire.NewCamera(&stillDevice{})
		dog = acquire.Image{Filename: "dog.jpg", ContentType: "image/jpeg", Data: []byte("woof")}
	})

	JustBeforeEach(func() {
		client := upload.NewClient(server.URL(), upload.Credentials{Username: "eco", Password: "secret"})
		session = NewSession(client, store, camera, nil)
	})

	AfterEach(func() {
		session.Close()
		Expect(store.Close()).To(Succeed())
		server.Close()
	})

	Describe("initial state", func() {
		It("should have no image, no banner and no response", func() {
			state := session.Snapshot()
			Expect(state.Mode).To(Equal(acquire.ModeFile))
			Expect(state.HasImage).To(BeFalse())
			Expect(state.HasResult).To(BeFalse())
			Expect(state.Banner).To(BeNil())
			Expect(state.Busy).To(BeFalse())
		})
	})

	When("a valid image is submitted", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, okBody("m1", 5)))
		})

		It("should record exactly one history entry equal to the response", func() {
			result, err := session.Submit(ctx, dog)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsValid()).To(BeTrue())

			entries := store.Entries()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Response).To(Equal(scan.Response{
				CarbonFootprint: map[string]string{"plastic": "2kg"},
				Coupons:         []scan.Coupon{},
				CouponTotal:     "0",
				EcoSavings:      5,
				ModelUsed:       "m1",
				ImageStatus:     "ok",
				TotalFootprint:  "12.3",
			}))
		})

		It("should display the footprint with two decimals", func() {
			_, _ = session.Submit(ctx, dog)
			state := session.Snapshot()
			Expect(state.HasResult).To(BeTrue())
			Expect(state.Panels.Footprint.Total).To(Equal("12.30"))
			Expect(state.Panels.Rewards.Balance).To(Equal(5.0))
		})

		It("should return to the initial state on reset, keeping history", func() {
			_, _ = session.Submit(ctx, dog)
			session.Reset()
			state := session.Snapshot()
			Expect(state.HasImage).To(BeFalse())
			Expect(state.HasResult).To(BeFalse())
			Expect(state.Banner).To(BeNil())
			Expect(state.Panels.Footprint).To(BeNil())
			Expect(state.Panels.History).To(HaveLen(1))
		})
	})

	When("the service rejects the image", func() {
		BeforeEach(func() {
			body := okBody("m1", 0)
			body["image"] = "invalid"
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, body))
		})

		It("should leave history unchanged and show the invalid message", func() {
			result, err := session.Submit(ctx, dog)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Verdict).To(Equal(scan.Rejected))
			Expect(store.Len()).To(Equal(0))

			state := session.Snapshot()
			Expect(state.Banner).NotTo(BeNil())
			Expect(state.Banner.Kind).To(Equal(BannerInvalid))
			Expect(state.Banner.Message).To(Equal(InvalidImageMessage))
			Expect(state.Panels.Footprint).To(BeNil())
		})
	})

	When("the transport fails with status 500", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, `{"detail":"An unexpected error occurred."}`))
		})

		It("should show the connectivity banner and leave history unchanged", func() {
			_, err := session.Submit(ctx, dog)
			var transportErr *upload.TransportError
			Expect(errors.As(err, &transportErr)).To(BeTrue())
			Expect(store.Len()).To(Equal(0))

			state := session.Snapshot()
			Expect(state.Busy).To(BeFalse())
			Expect(state.Banner.Kind).To(Equal(BannerTransport))
			Expect(state.Banner.Message).To(Equal(upload.TransportMessage))
			Expect(state.HasResult).To(BeFalse())
		})

		It("should clear the banner on dismiss", func() {
			_, _ = session.Submit(ctx, dog)
			session.DismissError()
			state := session.Snapshot()
			Expect(state.Banner).To(BeNil())
			Expect(state.HasImage).To(BeFalse())
		})
	})

	When("a previous response is on screen and the next upload fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(
				ghttp.RespondWithJSONEncoded(http.StatusOK, okBody("m1", 5)),
				ghttp.RespondWith(http.StatusBadGateway, ""),
			)
		})

		It("should clear the stale response", func() {
			_, err := session.Submit(ctx, dog)
			Expect(err).NotTo(HaveOccurred())
			_, err = session.Submit(ctx, dog)
			Expect(err).To(HaveOccurred())
			Expect(session.Snapshot().HasResult).To(BeFalse())
			Expect(store.Len()).To(Equal(1))
		})
	})

	When("two uploads succeed in sequence", func() {
		BeforeEach(func() {
			server.AppendHandlers(
				ghttp.RespondWithJSONEncoded(http.StatusOK, okBody("first", 1)),
				ghttp.RespondWithJSONEncoded(http.StatusOK, okBody("second", 2)),
			)
		})

		It("should hold both, newest first", func() {
			_, err := session.Submit(ctx, dog)
			Expect(err).NotTo(HaveOccurred())
			_, err = session.Submit(ctx, dog)
			Expect(err).NotTo(HaveOccurred())

			entries := store.Entries()
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].Response.ModelUsed).To(Equal("second"))
			Expect(entries[1].Response.ModelUsed).To(Equal("first"))
			Expect(session.Snapshot().Panels.Rewards.Balance).To(Equal(3.0))
		})
	})

	When("camera permission is denied", func() {
		BeforeEach(func() {
			camera = acquire.NewCamera(deniedDevice{})
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, okBody("m1", 5)))
		})

		It("should show an acquisition banner and keep file uploads working", func() {
			err := session.SetCamera(ctx, true, acquire.FacingBack)
			var acqErr *acquire.AcquisitionError
			Expect(errors.As(err, &acqErr)).To(BeTrue())

			state := session.Snapshot()
			Expect(state.Banner.Kind).To(Equal(BannerAcquisition))
			Expect(state.Mode).To(Equal(acquire.ModeFile))
			Expect(state.CameraActive).To(BeFalse())

			Expect(session.SetCamera(ctx, false, acquire.FacingBack)).To(Succeed())
			_, err = session.Submit(ctx, dog)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Len()).To(Equal(1))
		})
	})

	When("the camera is available", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				func(w http.ResponseWriter, r *http.Request) {
					defer GinkgoRecover()
					_, header, err := r.FormFile("file")
					Expect(err).NotTo(HaveOccurred())
					Expect(header.Filename).To(Equal("captured_image.jpg"))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, okBody("m1", 5)),
			))
		})

		It("should capture and submit a still", func() {
			Expect(session.SetCamera(ctx, true, acquire.FacingFront)).To(Succeed())
			state := session.Snapshot()
			Expect(state.Mode).To(Equal(acquire.ModeCamera))
			Expect(state.Facing).To(Equal(acquire.FacingFront))
			Expect(state.CameraActive).To(BeTrue())

			result, err := session.Capture(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsValid()).To(BeTrue())
			Expect(store.Len()).To(Equal(1))
		})

		It("should switch facing while in camera mode", func() {
			Expect(session.SetCamera(ctx, true, acquire.FacingFront)).To(Succeed())
			Expect(session.SwitchFacing(ctx)).To(Succeed())
			Expect(session.Snapshot().Facing).To(Equal(acquire.FacingBack))
		})

		It("should release the stream when leaving camera mode", func() {
			Expect(session.SetCamera(ctx, true, acquire.FacingBack)).To(Succeed())
			Expect(session.SetCamera(ctx, false, acquire.FacingBack)).To(Succeed())
			Expect(camera.Active()).To(BeFalse())
			Expect(session.Snapshot().Mode).To(Equal(acquire.ModeFile))
		})

		It("should refuse to switch facing in file mode", func() {
			Expect(session.SwitchFacing(ctx)).To(HaveOccurred())
		})
	})

	When("an upload is already in flight", func() {
		var uploader *blockingUploader

		JustBeforeEach(func() {
			uploader = &blockingUploader{
				started: make(chan struct{}),
				release: make(chan struct{}),
				resp:    &scan.Response{ImageStatus: "ok", TotalFootprint: "1"},
			}
			session = NewSession(uploader, store, camera, nil)
		})

		It("should reject a second upload and report busy", func() {
			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(done)
				_, err := session.Submit(ctx, dog)
				Expect(err).NotTo(HaveOccurred())
			}()

			Eventually(uploader.started).Should(BeClosed())
			Expect(session.Snapshot().Busy).To(BeTrue())
			_, err := session.Submit(ctx, dog)
			Expect(err).To(MatchError(ErrBusy))

			close(uploader.release)
			Eventually(done).Should(BeClosed())
			Expect(session.Snapshot().Busy).To(BeFalse())
			Expect(store.Len()).To(Equal(1))
		})
	})
})
