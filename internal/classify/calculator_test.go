package classify

import (
	"math/rand"
	"strconv"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("IsInvalid", func() {
	DescribeTable("classifying detections",
		func(d Detection, want bool) {
			Expect(IsInvalid(d)).To(Equal(want))
		},
		Entry("unknown category with placeholder items", Detection{Category: "unknown", Items: []string{"Invalid", "unknown"}}, true),
		Entry("unknown category with no items", Detection{Category: "unknown"}, true),
		Entry("unknown category with a garment", Detection{Category: "unknown", Items: []string{"unknown", "jeans"}}, false),
		Entry("invalid category with no items", Detection{Category: "invalid"}, true),
		Entry("invalid category with placeholders", Detection{Category: "invalid", Items: []string{"invalid"}}, true),
		Entry("invalid category with a garment", Detection{Category: "invalid", Items: []string{"hat"}}, false),
		Entry("a real category", Detection{Category: "Casual Wear", Items: []string{"invalid"}}, false),
	)
})

var _ = Describe("Calculator", func() {
	var calc *Calculator

	BeforeEach(func() {
		calc = NewCalculator(rand.New(rand.NewSource(7)))
	})

	When("the garments are in the table", func() {
		It("should sum the table values and double them into eco-savings", func() {
			resp := calc.Calculate(Detection{Category: "Casual Wear", Items: []string{"hoodie", "sweatpants"}, Image: "valid"}, "gemini-1.5-flash")

			Expect(resp.CarbonFootprint).To(Equal(map[string]string{"hoodie": "2kg", "sweatpants": "3kg"}))
			total, err := resp.TotalFootprint.Float()
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(BeNumerically("~", 5))
			Expect(resp.EcoSavings).To(BeNumerically("~", 10))
			Expect(resp.CouponTotal).To(Equal("The Eco-Savings points you received for this transaction is $10.00."))
			Expect(resp.ModelUsed).To(Equal("gemini-1.5-flash"))
			Expect(resp.ImageStatus).To(Equal("valid"))
		})

		It("should look up garments case insensitively", func() {
			resp := calc.Calculate(Detection{Category: "Formal", Items: []string{"Blazer"}}, "m")
			Expect(resp.CarbonFootprint).To(HaveKeyWithValue("Blazer", "4kg"))
		})
	})

	When("a garment is not in the table", func() {
		It("should assign a footprint between 1 and 5 kg with two decimals", func() {
			for i := 0; i < 50; i++ {
				resp := calc.Calculate(Detection{Category: "Outdoor", Items: []string{"poncho"}}, "m")
				value := resp.CarbonFootprint["poncho"]
				Expect(value).To(HaveSuffix("kg"))

				kg, err := strconv.ParseFloat(strings.TrimSuffix(value, "kg"), 64)
				Expect(err).NotTo(HaveOccurred())
				Expect(kg).To(BeNumerically(">=", 1))
				Expect(kg).To(BeNumerically("<=", 5))
				Expect(strings.TrimSuffix(value, "kg")).To(MatchRegexp(`^\d(\.\d{1,2})?$`))

				total, err := resp.TotalFootprint.Float()
				Expect(err).NotTo(HaveOccurred())
				Expect(total).To(BeNumerically("~", kg))
			}
		})
	})

	When("some items are placeholders", func() {
		It("should score them zero and leave them out of the total", func() {
			resp := calc.Calculate(Detection{Category: "Casual Wear", Items: []string{"jeans", "unknown", "invalid"}}, "m")
			Expect(resp.CarbonFootprint).To(Equal(map[string]string{"jeans": "4kg", "unknown": "0kg", "invalid": "0kg"}))
			Expect(resp.EcoSavings).To(BeNumerically("~", 8))
		})
	})

	When("the photo has no clothing", func() {
		It("should report a single invalid image entry", func() {
			resp := calc.Calculate(Detection{Category: "invalid", Image: "invalid"}, "m")
			Expect(resp.CarbonFootprint).To(Equal(map[string]string{InvalidImageLabel: "0"}))
			Expect(resp.TotalFootprint).To(BeEquivalentTo("0"))
			Expect(resp.EcoSavings).To(BeZero())
			Expect(resp.ImageStatus).To(Equal("invalid"))
		})
	})

	When("there are no items at all", func() {
		It("should return an empty footprint", func() {
			resp := calc.Calculate(Detection{Category: "Casual Wear"}, "m")
			Expect(resp.CarbonFootprint).To(BeEmpty())
			Expect(resp.EcoSavings).To(BeZero())
		})
	})

	Describe("coupons", func() {
		It("should draw at most twelve distinct coupons from the catalog", func() {
			seen := map[int]bool{}
			for i := 0; i < 100; i++ {
				resp := calc.Calculate(Detection{Category: "Casual Wear", Items: []string{"hat"}}, "m")
				Expect(len(resp.Coupons)).To(BeNumerically("<=", 12))
				seen[len(resp.Coupons)] = true

				titles := map[string]bool{}
				for _, c := range resp.Coupons {
					Expect(DefaultCoupons).To(ContainElement(c))
					Expect(titles).NotTo(HaveKey(c.Title))
					titles[c.Title] = true
				}
			}
			Expect(len(seen)).To(BeNumerically(">", 1))
		})

		It("should be reproducible for a fixed seed", func() {
			d := Detection{Category: "Casual Wear", Items: []string{"poncho"}}
			a := NewCalculator(rand.New(rand.NewSource(42))).Calculate(d, "m")
			b := NewCalculator(rand.New(rand.NewSource(42))).Calculate(d, "m")
			Expect(a).To(Equal(b))
		})

		It("should cope with a catalog smaller than the draw", func() {
			calc.Coupons = DefaultCoupons[:1]
			for i := 0; i < 20; i++ {
				resp := calc.Calculate(Detection{Category: "Casual Wear"}, "m")
				Expect(len(resp.Coupons)).To(BeNumerically("<=", 1))
			}
		})
	})
})
