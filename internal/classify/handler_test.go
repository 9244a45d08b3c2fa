package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockDetector is a mock implementation of Detector
type mockDetector struct {
	detection   *Detection
	err         error
	contentType string
	calls       int
	panics      bool
}

func (m *mockDetector) Detect(ctx context.Context, imageData []byte, contentType string) (*Detection, error) {
	m.calls++
	m.contentType = contentType
	if m.panics {
		panic("boom")
	}
	return m.detection, m.err
}

func (m *mockDetector) Model() string { return "mock-vision" }
func (m *mockDetector) Close() error  { return nil }

func uploadRequest(field string, data []byte) *http.Request {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, "shirt.png")
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.Close()).To(Succeed())

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

var _ = Describe("Handler", func() {
	var (
		detector *mockDetector
		handler  http.Handler
		rec      *httptest.ResponseRecorder
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		detector = &mockDetector{
			detection: &Detection{Category: "Casual Wear", Items: []string{"hoodie", "sweatpants"}, Image: "valid"},
		}
		handler = NewHandler(detector, NewCalculator(rand.New(rand.NewSource(1))), map[string]string{"eco": "secret"})
		rec = httptest.NewRecorder()
	})

	Describe("GET /", func() {
		It("should greet", func() {
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"message":"Hello World"}`))
		})

		It("should not accept POST", func() {
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
			Expect(rec.Code).To(Equal(http.StatusMethodNotAllowed))
		})
	})

	Describe("POST /upload", func() {
		When("the credentials are valid", func() {
			It("should return the scored response", func() {
				req := uploadRequest("file", pngBytes())
				req.SetBasicAuth("eco", "secret")
				handler.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusOK))
				var body map[string]interface{}
				Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
				Expect(body).To(HaveKeyWithValue("carbonfootprint", map[string]interface{}{"hoodie": "2kg", "sweatpants": "3kg"}))
				Expect(body).To(HaveKeyWithValue("total_footprint", BeNumerically("~", 5)))
				Expect(body).To(HaveKeyWithValue("ecosavings", BeNumerically("~", 10)))
				Expect(body).To(HaveKeyWithValue("modelused", "mock-vision"))
				Expect(body).To(HaveKeyWithValue("image", "valid"))
				Expect(body).To(HaveKey("coupons"))
				Expect(body).To(HaveKey("coupontotal"))
				Expect(detector.calls).To(Equal(1))
			})
		})

		When("the credentials are wrong", func() {
			It("should return Unauthorized without calling the model", func() {
				req := uploadRequest("file", pngBytes())
				req.SetBasicAuth("eco", "wrong")
				handler.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusUnauthorized))
				Expect(rec.Body.String()).To(MatchJSON(`{"detail":"Invalid credentials."}`))
				Expect(rec.Header().Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
				Expect(detector.calls).To(BeZero())
			})
		})

		When("there are no credentials", func() {
			It("should return Unauthorized", func() {
				handler.ServeHTTP(rec, uploadRequest("file", pngBytes()))
				Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			})
		})

		When("the file field is missing", func() {
			It("should return Unprocessable Entity", func() {
				req := uploadRequest("image", pngBytes())
				req.SetBasicAuth("eco", "secret")
				handler.ServeHTTP(rec, req)
				Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
			})
		})

		When("the model fails", func() {
			BeforeEach(func() {
				detector.err = errors.New("quota exceeded")
			})

			It("should return a server error with detail", func() {
				req := uploadRequest("file", pngBytes())
				req.SetBasicAuth("eco", "secret")
				handler.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusInternalServerError))
				Expect(rec.Body.String()).To(MatchJSON(`{"detail":"Failed to process model response."}`))
			})
		})

		When("the handler panics", func() {
			BeforeEach(func() {
				detector.panics = true
			})

			It("should recover with a generic detail", func() {
				req := uploadRequest("file", pngBytes())
				req.SetBasicAuth("eco", "secret")
				handler.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusInternalServerError))
				Expect(rec.Body.String()).To(MatchJSON(`{"detail":"An unexpected error occurred."}`))
			})
		})

		When("the photo has no clothing", func() {
			BeforeEach(func() {
				detector.detection = &Detection{Category: "invalid", Items: []string{"invalid"}, Image: "invalid"}
			})

			It("should still answer with the invalid marker", func() {
				req := uploadRequest("file", pngBytes())
				req.SetBasicAuth("eco", "secret")
				handler.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusOK))
				var body map[string]interface{}
				Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
				Expect(body).To(HaveKeyWithValue("image", "invalid"))
				Expect(body).To(HaveKeyWithValue("carbonfootprint", map[string]interface{}{"invalid image": "0"}))
			})
		})
	})
})
