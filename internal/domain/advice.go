package domain

// Diagnosis is the crop doctor result for one plant image.
type Diagnosis struct {
	IsHealthy   bool     `json:"isHealthy"`
	DiseaseName string   `json:"diseaseName"`
	Description string   `json:"description"`
	Treatment   []string `json:"treatment"`
}

// FertilizerStage is one application step in a fertilizer plan.
type FertilizerStage struct {
	Stage      string `json:"stage"`
	Fertilizer string `json:"fertilizer"`
	Amount     string `json:"amount"`
}

// FertilizerPlan is the fertilizer optimizer result.
type FertilizerPlan struct {
	NPKRatio            string            `json:"npkRatio"`
	Recommendations     []FertilizerStage `json:"recommendations"`
	Notes               []string          `json:"notes"`
	OrganicAlternatives []string          `json:"organicAlternatives"`
}

// CropSuggestion is one entry of a crop recommendation.
type CropSuggestion struct {
	CropName               string   `json:"cropName"`
	Reasoning              string   `json:"reasoning"`
	EstimatedProfitability string   `json:"estimatedProfitability"`
	SuitableRegions        []string `json:"suitableRegions"`
}

// Normalize replaces nil slices with empty ones.
func (d *Diagnosis) Normalize() {
	if d.Treatment == nil {
		d.Treatment = []string{}
	}
}

// Normalize replaces nil slices with empty ones.
func (p *FertilizerPlan) Normalize() {
	if p.Recommendations == nil {
		p.Recommendations = []FertilizerStage{}
	}
	if p.Notes == nil {
		p.Notes = []string{}
	}
	if p.OrganicAlternatives == nil {
		p.OrganicAlternatives = []string{}
	}
}

// Normalize replaces nil slices with empty ones.
func (c *CropSuggestion) Normalize() {
	if c.SuitableRegions == nil {
		c.SuitableRegions = []string{}
	}
}
