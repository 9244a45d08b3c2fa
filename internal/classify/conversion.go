package classify

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// sourceFormat picks the decoder for an upload. The declared content type wins
// when it names a format we convert; otherwise the bytes are sniffed, since
// camera uploads and drag-and-drop often arrive as octet-stream.
func sourceFormat(data []byte, contentType string) string {
	declared := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case declared == "application/pdf":
		return "pdf"
	case strings.Contains(declared, "heic"), strings.Contains(declared, "heif"):
		return "heic"
	}

	detected := mimetype.Detect(data)
	switch {
	case detected.Is("application/pdf"):
		return "pdf"
	case detected.Is("image/heic"), detected.Is("image/heif"), isHEIC(data):
		return "heic"
	case detected.Is("image/png"):
		return "png"
	default:
		return "image"
	}
}

// isHEIC looks for an ISO BMFF ftyp box with a HEIF brand
func isHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// toPNG normalizes an upload to PNG so every model sees the same format.
// PNG input is passed through untouched.
func toPNG(data []byte, contentType string) ([]byte, error) {
	var (
		img image.Image
		err error
	)

	switch sourceFormat(data, contentType) {
	case "png":
		return data, nil
	case "pdf":
		img, err = renderFirstPage(data)
	case "heic":
		img, err = heic.Decode(bytes.NewReader(data))
		if err != nil {
			err = fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			err = fmt.Errorf("unsupported image format (want JPEG, PNG, GIF, HEIC or PDF): %w", err)
		}
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func renderFirstPage(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}
