package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/zombor/ecoscan/internal/acquire"
	"github.com/zombor/ecoscan/internal/view"
)

// maxFormSize bounds multipart parsing memory, not the accepted image size
const maxFormSize = int64(50 << 20) // 50MB

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleStaticJS serves the JavaScript file
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleState returns the current page state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

// handleHistory returns the raw history entries, newest first
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.history.Entries())
}

// handleImage returns the image currently on screen
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	img, ok := s.session.Image()
	if !ok {
		http.Error(w, "No image", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", img.ContentType)
	w.Write(img.Data)
}

// handleUpload accepts a picked or dropped file and submits it
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, http.StatusBadRequest, "No file was selected. Please choose a file to upload.")
		return
	}
	defer f.Close()

	img, err := acquire.FromFile(header.Filename, f, header.Header.Get("Content-Type"))
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	s.submit(w, r, func(ctx context.Context) error {
		_, err := s.session.Submit(ctx, img)
		return err
	})
}

// handleCameraCapture grabs a still from the camera and submits it
func (s *Server) handleCameraCapture(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, func(ctx context.Context) error {
		_, err := s.session.Capture(ctx)
		return err
	})
}

// submit runs an upload detached from the request so a closed tab does not
// abandon a scan half way through recording it.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context) error) {
	err := fn(context.WithoutCancel(r.Context()))
	if errors.Is(err, view.ErrBusy) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	// Every other failure is already reflected in the banner
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

type cameraRequest struct {
	Enabled bool   `json:"enabled"`
	Facing  string `json:"facing"`
}

// handleCamera toggles camera mode
func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request) {
	var req cameraRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	facing, err := acquire.ParseFacing(req.Facing)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Failures become an acquisition banner in the state
	_ = s.session.SetCamera(r.Context(), req.Enabled, facing)
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

// handleCameraSwitch flips between the front and back camera
func (s *Server) handleCameraSwitch(w http.ResponseWriter, r *http.Request) {
	_ = s.session.SwitchFacing(r.Context())
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

// handleCameraFrame serves the live preview frame
func (s *Server) handleCameraFrame(w http.ResponseWriter, r *http.Request) {
	data, err := s.session.Preview(r.Context())
	if errors.Is(err, acquire.ErrNotActive) {
		http.Error(w, "Camera is not active", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Warn("Error reading camera frame", "error", err)
		http.Error(w, "Camera unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// handleReset returns the page to the upload view
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.session.Reset()
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

// handleDismiss dismisses the banner and resets
func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s.session.DismissError()
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}
