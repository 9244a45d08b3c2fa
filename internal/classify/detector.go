package classify

import "context"

// Detection is what a vision model reports about a photo
type Detection struct {
	Category string   `json:"category"`
	Items    []string `json:"items"`
	Image    string   `json:"cloth_image"` // "valid" or "invalid"
}

// Detector identifies clothing in an image
type Detector interface {
	// Detect analyzes an image and lists the garments in it
	Detect(ctx context.Context, imageData []byte, contentType string) (*Detection, error)
	// Model names the model that produced detections, reported back as modelused
	Model() string
	// Close closes the detector and releases resources
	Close() error
}

// clothingPrompt is the shared prompt used by all LLM providers
const clothingPrompt = `Identify clothing items and category data in JSON format. If there are no clothing items, send all values as invalid.

Return ONLY valid JSON in this exact format:
{
  "category": "Casual Wear",
  "items": ["hoodie", "sweatpants"],
  "cloth_image": "valid"
}

Important:
- items are lowercase garment names such as "t-shirt", "jeans", "jacket", "socks"
- cloth_image is "valid" when the photo shows clothing and "invalid" otherwise
- Do not include any text before or after the JSON
- Do not use markdown code blocks`
