package classify

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseDetection parses the JSON answer of a vision model
func parseDetection(text string) (*Detection, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Models sometimes wrap the object in prose
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var data Detection
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data.Category = strings.TrimSpace(data.Category)
	data.Image = strings.ToLower(strings.TrimSpace(data.Image))
	items := data.Items[:0]
	for _, item := range data.Items {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	data.Items = items

	return &data, nil
}
