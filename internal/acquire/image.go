package acquire

import (
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Mode selects where the next image comes from
type Mode string

const (
	ModeFile   Mode = "file"
	ModeCamera Mode = "camera"
)

// Image is a single binary image ready to be uploaded
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// FromFile reads an image picked or dropped by the user. The payload is not
// validated; the classification service is the only judge of what it accepts.
// A missing or generic content type is filled in by sniffing the bytes.
func FromFile(filename string, r io.Reader, contentType string) (Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Image{}, fmt.Errorf("reading file: %w", err)
	}

	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(data).String()
	}

	if filename == "" {
		filename = "upload"
	}

	return Image{
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}
