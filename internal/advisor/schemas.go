package advisor

import "google.golang.org/genai"

func stringList(description string) *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeArray,
		Description: description,
		Items:       &genai.Schema{Type: genai.TypeString},
	}
}

var diagnosisSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"isHealthy": {
			Type:        genai.TypeBoolean,
			Description: "Is the plant in the image healthy?",
		},
		"diseaseName": {
			Type:        genai.TypeString,
			Description: "The common name of the disease. If healthy, this should be 'Healthy'.",
		},
		"description": {
			Type:        genai.TypeString,
			Description: "A detailed description of the disease, its symptoms, and causes.",
		},
		"treatment": stringList("A list of actionable treatment steps or recommendations."),
	},
	Required: []string{"isHealthy", "diseaseName", "description", "treatment"},
}

var fertilizerSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"npkRatio": {
			Type:        genai.TypeString,
			Description: "The recommended N:P:K ratio for the crop at its current stage based on soil data.",
		},
		"recommendations": {
			Type:        genai.TypeArray,
			Description: "A list of fertilizer application recommendations.",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"stage": {
						Type:        genai.TypeString,
						Description: "The crop growth stage for this application (e.g., Basal Dose, Tillering Stage, Flowering Stage).",
					},
					"fertilizer": {
						Type:        genai.TypeString,
						Description: "The name of the fertilizer to apply (e.g., Urea, DAP, MOP).",
					},
					"amount": {
						Type:        genai.TypeString,
						Description: "The recommended amount of fertilizer to apply, including units (e.g., '50 kg/acre').",
					},
				},
				Required: []string{"stage", "fertilizer", "amount"},
			},
		},
		"notes":               stringList("Additional important notes or advice, such as application methods or precautions."),
		"organicAlternatives": stringList("A list of organic alternatives to chemical fertilizers (e.g., 'Compost', 'Vermi-compost', 'Neem Cake')."),
	},
	Required: []string{"npkRatio", "recommendations", "notes", "organicAlternatives"},
}

var cropRecommendationSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"cropName": {
				Type:        genai.TypeString,
				Description: "The name of the recommended crop.",
			},
			"reasoning": {
				Type:        genai.TypeString,
				Description: "A detailed explanation of why this crop is suitable, considering soil, climate, and market factors.",
			},
			"estimatedProfitability": {
				Type:        genai.TypeString,
				Description: "An estimation of the crop's market profitability (e.g., 'High', 'Medium', 'Low').",
			},
			"suitableRegions": stringList("Specific regions or districts in the provided state/location where this crop grows best."),
		},
		Required: []string{"cropName", "reasoning", "estimatedProfitability", "suitableRegions"},
	},
}
