package classify

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zombor/ecoscan/internal/scan"
)

// InvalidImageLabel is the only footprint entry of a photo without clothing
const InvalidImageLabel = "invalid image"

// maxCoupons bounds how many coupons one scan can award
const maxCoupons = 12

// DefaultFootprints is the per garment footprint table
var DefaultFootprints = map[string]string{
	"hoodie":     "2kg",
	"sweatpants": "3kg",
	"t-shirt":    "1kg",
	"jeans":      "4kg",
	"jacket":     "5kg",
	"shorts":     "2kg",
	"dress":      "3.5kg",
	"skirt":      "2.5kg",
	"socks":      "0.5kg",
	"hat":        "0.8kg",
	"scarf":      "1kg",
	"activewear": "3kg",
	"swimwear":   "2kg",
	"pajamas":    "1.5kg",
	"overalls":   "4.5kg",
	"others":     "1kg",
	"blazer":     "4kg",
}

// DefaultCoupons is the partner catalog coupons are drawn from
var DefaultCoupons = []scan.Coupon{
	{Title: "Eco Store", Price: "$5", Link: "https://yakkshit.com"},
	{Title: "Green Products Co.", Price: "$10", Link: "https://yakkshit.com"},
	{Title: "Sustainable Fashion", Price: "$15", Link: "https://yakkshit.com"},
	{Title: "Organic Marketplace", Price: "$7", Link: "https://yakkshit.com"},
	{Title: "Renewable Goods", Price: "$12", Link: "https://yakkshit.com"},
	{Title: "Eco-Friendly Apparel", Price: "$8", Link: "https://yakkshit.com"},
	{Title: "Green Living Essentials", Price: "$20", Link: "https://yakkshit.com"},
	{Title: "Conscious Clothing", Price: "$25", Link: "https://yakkshit.com"},
	{Title: "Nature's Best", Price: "$18", Link: "https://yakkshit.com"},
	{Title: "Planet-Friendly Products", Price: "$14", Link: "https://yakkshit.com"},
	{Title: "Ethical Fashion Hub", Price: "$22", Link: "https://yakkshit.com"},
	{Title: "Sustainable Home Goods", Price: "$9", Link: "https://yakkshit.com"},
	{Title: "Zero Waste Shop", Price: "$11", Link: "https://yakkshit.com"},
	{Title: "Green Tech Solutions", Price: "$30", Link: "https://yakkshit.com"},
}

// Calculator turns a detection into the response the app displays
type Calculator struct {
	Footprints map[string]string
	Coupons    []scan.Coupon

	mu  sync.Mutex
	rng *rand.Rand
}

// NewCalculator creates a Calculator over the default tables. A nil rng is
// replaced by a time-seeded one.
func NewCalculator(rng *rand.Rand) *Calculator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Calculator{
		Footprints: DefaultFootprints,
		Coupons:    DefaultCoupons,
		rng:        rng,
	}
}

func isPlaceholder(item string) bool {
	item = strings.ToLower(item)
	return item == "invalid" || item == "unknown"
}

func allPlaceholders(items []string) bool {
	for _, item := range items {
		if !isPlaceholder(item) {
			return false
		}
	}
	return true
}

// IsInvalid reports whether d describes a photo without recognizable clothing
func IsInvalid(d Detection) bool {
	switch d.Category {
	case "unknown":
		return allPlaceholders(d.Items)
	case "invalid":
		return len(d.Items) == 0 || allPlaceholders(d.Items)
	}
	return false
}

// Calculate prices a detection. Unknown garments get a random footprint
// between 1 and 5 kg, and every kilogram earns two eco-savings points.
func (c *Calculator) Calculate(d Detection, model string) scan.Response {
	c.mu.Lock()
	defer c.mu.Unlock()

	footprint := make(map[string]string)
	var total float64

	if IsInvalid(d) {
		footprint[InvalidImageLabel] = "0"
	} else {
		for _, item := range d.Items {
			switch {
			case isPlaceholder(item):
				footprint[item] = "0kg"
			case c.Footprints[strings.ToLower(item)] != "":
				footprint[item] = c.Footprints[strings.ToLower(item)]
			default:
				kg := math.Round((1+c.rng.Float64()*4)*100) / 100
				footprint[item] = strconv.FormatFloat(kg, 'f', -1, 64) + "kg"
			}
		}
		for _, value := range footprint {
			if value == "0kg" {
				continue
			}
			kg, err := strconv.ParseFloat(strings.TrimSuffix(value, "kg"), 64)
			if err == nil {
				total += kg
			}
		}
	}

	ecoSavings := total * 2

	return scan.Response{
		CarbonFootprint: footprint,
		Coupons:         c.sampleCoupons(c.rng.Intn(maxCoupons + 1)),
		CouponTotal:     fmt.Sprintf("The Eco-Savings points you received for this transaction is $%.2f.", ecoSavings),
		EcoSavings:      ecoSavings,
		ModelUsed:       model,
		ImageStatus:     d.Image,
		TotalFootprint:  scan.NewQuantity(total),
	}
}

// sampleCoupons draws n distinct coupons from the catalog
func (c *Calculator) sampleCoupons(n int) []scan.Coupon {
	if n > len(c.Coupons) {
		n = len(c.Coupons)
	}
	coupons := make([]scan.Coupon, 0, n)
	for _, i := range c.rng.Perm(len(c.Coupons))[:n] {
		coupons = append(coupons, c.Coupons[i])
	}
	return coupons
}
