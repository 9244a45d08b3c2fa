package scan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Coupon is a promotional offer attached to a scan
type Coupon struct {
	Title string `json:"title"`
	Price string `json:"price"`
	Link  string `json:"link"`
}

// Response is the record returned by the classification service for one image
type Response struct {
	CarbonFootprint map[string]string `json:"carbonfootprint"` // label -> formatted quantity, display only
	Coupons         []Coupon          `json:"coupons"`
	CouponTotal     string            `json:"coupontotal"`
	EcoSavings      float64           `json:"ecosavings"`
	ModelUsed       string            `json:"modelused"`
	ImageStatus     string            `json:"image"`
	TotalFootprint  Quantity          `json:"total_footprint"`
}

// UnmarshalJSON accepts the field spellings used by both the service and
// older cached histories.
func (r *Response) UnmarshalJSON(data []byte) error {
	type plain Response
	var aux struct {
		plain
		ModelUsedAlt   *string `json:"model_used"`
		ImageStatusAlt *string `json:"image_status"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Response(aux.plain)
	if r.ModelUsed == "" && aux.ModelUsedAlt != nil {
		r.ModelUsed = *aux.ModelUsedAlt
	}
	if r.ImageStatus == "" && aux.ImageStatusAlt != nil {
		r.ImageStatus = *aux.ImageStatusAlt
	}
	return nil
}

// Quantity is a numeric value carried as text. The service sends it as a JSON
// number while cached records hold it as a string; both decode to the same value.
type Quantity string

// UnmarshalJSON implements json.Unmarshaler
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*q = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*q = Quantity(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("quantity must be a number or string: %w", err)
		}
		*q = Quantity(n.String())
		return nil
	}
}

// NewQuantity formats f with the fewest digits that round trip
func NewQuantity(f float64) Quantity {
	return Quantity(strconv.FormatFloat(f, 'f', -1, 64))
}

// MarshalJSON writes well formed quantities as JSON numbers and anything else
// as a string.
func (q Quantity) MarshalJSON() ([]byte, error) {
	if _, err := q.Float(); err == nil && json.Valid([]byte(q)) {
		return []byte(q), nil
	}
	return json.Marshal(string(q))
}

// Float parses the quantity
func (q Quantity) Float() (float64, error) {
	return strconv.ParseFloat(string(q), 64)
}

// Decode parses a service response body. No schema validation is performed
// beyond JSON decoding.
func Decode(r io.Reader) (*Response, error) {
	var resp Response
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding scan response: %w", err)
	}
	return &resp, nil
}
