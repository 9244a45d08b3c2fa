package view

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/zombor/ecoscan/internal/history"
	"github.com/zombor/ecoscan/internal/scan"
)

// FootprintItem is one row of the per-item breakdown
type FootprintItem struct {
	Label  string `json:"label"`
	Amount string `json:"amount"`
}

// FootprintPanel shows the aggregate and per-item footprint of the current scan
type FootprintPanel struct {
	Total       string          `json:"total"`
	Items       []FootprintItem `json:"items"`
	ModelUsed   string          `json:"model_used"`
	ImageStatus string          `json:"image_status"`
}

// Transaction is one eco-savings credit shown in the rewards panel
type Transaction struct {
	Amount     float64   `json:"amount"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RewardsPanel shows the balance accrued over the whole history
type RewardsPanel struct {
	Balance       float64       `json:"balance"`
	CurrentReward float64       `json:"current_reward"`
	Message       string        `json:"message"`
	Transactions  []Transaction `json:"transactions"`
}

// HistoryItem is one past scan as listed in the history panel
type HistoryItem struct {
	Title      string          `json:"title"`
	EcoSavings float64         `json:"ecosavings"`
	Items      []FootprintItem `json:"items"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Panels is everything the page renders once a response is available
type Panels struct {
	Footprint *FootprintPanel `json:"footprint,omitempty"`
	Coupons   []CouponCard    `json:"coupons"`
	Rewards   RewardsPanel    `json:"rewards"`
	History   []HistoryItem   `json:"history"`
}

// FormatFootprint renders a total with two decimals. Malformed values come
// out as "NaN" and an empty value as zero, matching how the page used to
// coerce the field.
func FormatFootprint(q scan.Quantity) string {
	s := strings.TrimSpace(string(q))
	if s == "" {
		return "0.00"
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return "NaN"
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// Balance is the total eco-savings over the history. It is recomputed from
// the entries every time; nothing accumulates between calls.
func Balance(entries []history.ScanEntry) float64 {
	var total float64
	for _, e := range entries {
		total += e.Response.EcoSavings
	}
	return total
}

// Derive builds the panels for the current result and history. result may be
// nil when no scan is on screen; cards are the pre-decorated coupons of result.
func Derive(result *scan.Result, cards []CouponCard, entries []history.ScanEntry) Panels {
	panels := Panels{
		Coupons: []CouponCard{},
		History: make([]HistoryItem, 0, len(entries)),
		Rewards: RewardsPanel{
			Balance:      Balance(entries),
			Transactions: make([]Transaction, 0, len(entries)),
		},
	}

	if result != nil && result.IsValid() {
		resp := result.Response
		panels.Footprint = &FootprintPanel{
			Total:       FormatFootprint(resp.TotalFootprint),
			Items:       breakdown(resp.CarbonFootprint),
			ModelUsed:   resp.ModelUsed,
			ImageStatus: resp.ImageStatus,
		}
		if cards != nil {
			panels.Coupons = cards
		}
		if resp.EcoSavings > 0 && !math.IsNaN(resp.EcoSavings) {
			panels.Rewards.CurrentReward = resp.EcoSavings
		}
		panels.Rewards.Message = resp.CouponTotal
	}

	for i, e := range entries {
		panels.History = append(panels.History, HistoryItem{
			Title:      "Scan " + strconv.Itoa(i+1),
			EcoSavings: e.Response.EcoSavings,
			Items:      breakdown(e.Response.CarbonFootprint),
			RecordedAt: e.RecordedAt,
		})
		panels.Rewards.Transactions = append(panels.Rewards.Transactions, Transaction{
			Amount:     e.Response.EcoSavings,
			RecordedAt: e.RecordedAt,
		})
	}

	return panels
}

// breakdown lists footprint entries sorted by label, labels title-cased
func breakdown(footprint map[string]string) []FootprintItem {
	labels := make([]string, 0, len(footprint))
	for label := range footprint {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	caser := cases.Title(language.English)
	items := make([]FootprintItem, 0, len(labels))
	for _, label := range labels {
		items = append(items, FootprintItem{
			Label:  caser.String(label),
			Amount: footprint[label],
		})
	}
	return items
}
