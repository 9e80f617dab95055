package app

// PlanTier describes one subscription tier for the pricing view. The
// subscription itself is a mock: Upgrade flips the plan without payment.
type PlanTier struct {
	Name     string   `json:"name"`
	Price    string   `json:"price"`
	Desc     string   `json:"desc"`
	Features []string `json:"features"`
}

// Plans returns the pricing tiers.
func Plans() []PlanTier {
	return []PlanTier{
		{
			Name:     "Standard",
			Price:    "$0",
			Desc:     "Essential diagnostics for home gardens and small hobby fields.",
			Features: []string{"10 Scans / Week", "Standard AI Analysis", "Basic Chat Support"},
		},
		{
			Name:     "Pro",
			Price:    "$29",
			Desc:     "High-precision intelligence for commercial farms and agronomy labs.",
			Features: []string{"Unlimited Scans", "Priority Pro AI Processing", "Expert Resources Access"},
		},
	}
}

// Resource is one entry of the curated reference list.
type Resource struct {
	Title string `json:"title"`
	Desc  string `json:"desc"`
	Link  string `json:"link"`
	Icon  string `json:"icon"`
}

// Resources returns the curated agricultural reference links.
func Resources() []Resource {
	return []Resource{
		{
			Title: "FAO Plant Health",
			Desc:  "United Nations portal for global plant protection and disease control standards.",
			Link:  "https://www.fao.org/plant-health-challenge/en/",
			Icon:  "🌐",
		},
		{
			Title: "PlantVillage",
			Desc:  "Open source database of crop diseases with high-quality reference images.",
			Link:  "https://plantvillage.psu.edu/",
			Icon:  "🏠",
		},
		{
			Title: "CABI Plantwise",
			Desc:  "Knowledge bank for managing plant health problems across the globe.",
			Link:  "https://www.plantwise.org/KnowledgeBank",
			Icon:  "📚",
		},
		{
			Title: "Cornell Plant Pathology",
			Desc:  "Academic resources for in-depth study of fungal, bacterial, and viral plant pathogens.",
			Link:  "https://plantpath.cornell.edu/",
			Icon:  "🎓",
		},
		{
			Title: "USDA APHIS",
			Desc:  "Protecting American agriculture from pests and diseases.",
			Link:  "https://www.aphis.usda.gov/",
			Icon:  "🛡️",
		},
	}
}
