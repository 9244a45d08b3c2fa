package view

import (
	"math/rand"
	"sync"
	"time"

	"github.com/zombor/ecoscan/internal/scan"
)

// Gradients are the card backgrounds defined in app.css
var Gradients = []string{
	"gradient-ocean",
	"gradient-meadow",
	"gradient-sunset",
	"gradient-blossom",
	"gradient-dusk",
}

// limitedTimeChance is the probability a coupon gets the limited time badge
const limitedTimeChance = 0.5

// CouponCard is a coupon with its purely visual decoration
type CouponCard struct {
	scan.Coupon
	Gradient    string `json:"gradient"`
	LimitedTime bool   `json:"limited_time"`
}

// Decorator picks coupon decoration from an injected random source
type Decorator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewDecorator creates a Decorator. A nil rng is replaced by a time-seeded one;
// tests pass a fixed seed to get a reproducible layout.
func NewDecorator(rng *rand.Rand) *Decorator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Decorator{rng: rng}
}

// Decorate assigns a gradient and limited time flag to each coupon
func (d *Decorator) Decorate(coupons []scan.Coupon) []CouponCard {
	d.mu.Lock()
	defer d.mu.Unlock()

	cards := make([]CouponCard, 0, len(coupons))
	for _, c := range coupons {
		cards = append(cards, CouponCard{
			Coupon:      c,
			Gradient:    Gradients[d.rng.Intn(len(Gradients))],
			LimitedTime: d.rng.Float64() < limitedTimeChance,
		})
	}
	return cards
}
