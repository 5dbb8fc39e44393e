package customer

// AgeRange buckets a customer's age as resolved by the profile service.
type AgeRange string

const (
	AgeUnder18 AgeRange = "UNDER_18"
	Age18To21  AgeRange = "AGE_18_TO_21"
	Age22To30  AgeRange = "AGE_22_TO_30"
	Age31To40  AgeRange = "AGE_31_TO_40"
	Age41To50  AgeRange = "AGE_41_TO_50"
	Age51To60  AgeRange = "AGE_51_TO_60"
	AgeOver60  AgeRange = "AGE_OVER_60"
)

// AgeRanges lists every valid age range, in ascending order.
var AgeRanges = []AgeRange{
	AgeUnder18, Age18To21, Age22To30, Age31To40, Age41To50, Age51To60, AgeOver60,
}

// ValidAgeRange reports whether s names a known age range.
func ValidAgeRange(s string) bool {
	for _, r := range AgeRanges {
		if string(r) == s {
			return true
		}
	}
	return false
}

// Profile holds the demographic attributes the profile service resolves for a
// recognized customer. Unknown customers resolve to the zero Profile.
type Profile struct {
	AgeRange   AgeRange `json:"age_range"`
	IsParent   bool     `json:"is_parent"`
	HomeRegion string   `json:"home_region"`
}

// Spend aggregates a customer's purchase history in one category for one
// marketplace. AmountSpent is in the marketplace's minor currency unit.
type Spend struct {
	PurchaseCount int `json:"purchase_count"`
	AmountSpent   int `json:"amount_spent"`
}
