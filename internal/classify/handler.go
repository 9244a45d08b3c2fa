package classify

import (
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// MaxUploadSize bounds the request body of an upload
const MaxUploadSize = int64(50 << 20) // 50MB

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// NewHandler builds the classification API. users maps usernames to
// passwords for basic auth on /upload.
func NewHandler(detector Detector, calc *Calculator, users map[string]string) http.Handler {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(
		requestLogger(),
		gin.CustomRecovery(func(c *gin.Context, recovered any) {
			slog.Error("Panic while handling request", "path", c.Request.URL.Path, "panic", recovered)
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Detail: "An unexpected error occurred."})
		}),
	)

	r.GET("/", root)
	r.POST("/upload", requestSizeLimiter(MaxUploadSize), authenticate(users), uploadImage(detector, calc))

	return r
}

func root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Hello World"})
}

func uploadImage(detector Detector, calc *Calculator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header, err := c.FormFile("file")
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, ErrorResponse{Detail: "file is required"})
			return
		}

		f, err := header.Open()
		if err != nil {
			slog.Error("Error opening uploaded file", "error", err, "filename", header.Filename)
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Detail: "An unexpected error occurred."})
			return
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			slog.Error("Error reading uploaded file", "error", err, "filename", header.Filename)
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Detail: "An unexpected error occurred."})
			return
		}
		slog.Debug("Read upload", "filename", header.Filename, "size", len(data))

		detection, err := detector.Detect(c.Request.Context(), data, header.Header.Get("Content-Type"))
		if err != nil {
			slog.Error("Error detecting clothing", "error", err, "model", detector.Model(), "filename", header.Filename)
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Detail: "Failed to process model response."})
			return
		}

		resp := calc.Calculate(*detection, detector.Model())
		slog.Info("Scored upload",
			"filename", header.Filename,
			"category", detection.Category,
			"items", len(detection.Items),
			"image", detection.Image,
			"total_footprint", resp.TotalFootprint,
		)
		c.JSON(http.StatusOK, resp)
	}
}

// authenticate checks basic auth against the configured users
func authenticate(users map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		want, known := users[user]
		if !ok || !known || subtle.ConstantTimeCompare([]byte(pass), []byte(want)) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="EcoScan"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Detail: "Invalid credentials."})
			return
		}
		c.Next()
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("Handled request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}
