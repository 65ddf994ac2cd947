package advisor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ashureev/farm-connect/internal/domain"
)

const diagnosisPrompt = `Analyze this image of a plant leaf.
1. Identify if the plant is healthy or has a disease.
2. If diseased, identify the specific disease.
3. Provide a detailed description of the disease.
4. Suggest a list of actionable treatment methods.
5. If the image is not a plant or the quality is too poor, indicate that in the description.
Return the result in the specified JSON format. For healthy plants, diseaseName should be 'Healthy' and treatment can be an empty array or suggest preventive care.`

func weatherPrompt(w domain.Weather, crop string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert agricultural advisor. Based on the following weather data for %s, "+
		"provide a concise, actionable farming advisory for %s crops. Focus on irrigation, potential pest/disease risks, "+
		"and any necessary crop protection measures for the next 5 days.\n\n", w.Location, crop)
	b.WriteString("Weather Data:\n")
	fmt.Fprintf(&b, "- Current Temperature: %d°C\n", w.Current.Temp)
	fmt.Fprintf(&b, "- Current Condition: %s\n", w.Current.Condition)
	fmt.Fprintf(&b, "- %d-Day Forecast:\n", len(w.Forecast))
	for _, d := range w.Forecast {
		fmt.Fprintf(&b, "  - %s: %d°C - %d°C, %s\n", d.Day, d.TempMin, d.TempMax, d.Condition)
	}
	b.WriteString("\nProvide the advisory in a clear, easy-to-read format.")
	return b.String()
}

func financialPrompt(crop, landSize, need, details string) string {
	if details == "" {
		details = "None"
	}
	return fmt.Sprintf(`You are an expert financial advisor for Indian farmers, named "Farm Connect AI Advisor".

A farmer has provided the following details:
- Crop: %s
- Land Size: %s acres
- Primary Financial Need: %s
- Additional Details: %s

Based on this information, provide a personalized financial plan. Your plan should include:
1. **Recommended Government Schemes:** Suggest 2-3 specific central or state-level schemes that are most relevant. For each scheme, briefly explain the benefit and why it fits the farmer's needs. Use schemes like PM-KISAN, PMFBY, KCC, PM-KUSUM, etc.
2. **Suitable Loan Products:** Recommend the type of loan they should consider (e.g., Kisan Credit Card for working capital, term loan for equipment). Explain why.
3. **Actionable Steps:** Provide a clear, step-by-step list of what the farmer should do next (e.g., '1. Visit your nearest bank branch...', '2. Prepare documents like Aadhaar and land records...').
4. **Risk Management Advice:** Briefly mention the importance of crop insurance (like PMFBY) if applicable.

Format your response in clear, simple language that is easy for a farmer to understand. Use headings and bullet points.`,
		crop, landSize, need, details)
}

func fertilizerPrompt(crop string, n, p, k float64) string {
	return fmt.Sprintf(`You are an expert agronomist AI. A farmer needs a fertilizer recommendation.

Crop: %s
Soil Test Results:
- Nitrogen (N): %s kg/ha
- Phosphorus (P): %s kg/ha
- Potassium (K): %s kg/ha

Provide a detailed fertilizer plan tailored to these conditions. The plan should include:
1. A recommended N:P:K ratio.
2. Specific fertilizer recommendations (like Urea, DAP, MOP) with amounts per acre.
3. Application divided by crop stages (e.g., Basal, Tillering, Flowering).
4. Important notes about application techniques.
5. Suggestions for organic alternatives.

Return the result in the specified JSON format.`,
		crop, formatNumber(n), formatNumber(p), formatNumber(k))
}

func forecastPrompt(crop string) string {
	return fmt.Sprintf(`You are an expert agricultural market analyst. Provide a short-term (2-4 weeks) market price trend forecast for %s in India.

Your analysis should consider the following factors:
- Current supply and demand dynamics.
- Recent weather patterns affecting the crop.
- Government policies or announcements (e.g., MSP, import/export duties).
- Festive season demand, if applicable.

Provide a concise summary with a clear trend prediction (e.g., "Prices are expected to rise slightly," "Prices likely to remain stable," "A downward correction is anticipated"). Conclude with one or two key reasons for your forecast.

Format the response in a clear, easy-to-read paragraph.`, crop)
}

func cropRecommendationPrompt(location, soil string, rainfall float64) string {
	return fmt.Sprintf(`You are an expert agricultural scientist specializing in Indian farming conditions. A farmer needs a crop recommendation based on the following data:
- Location (State/District): %s
- Soil Type: %s
- Average Annual Rainfall (mm): %s

Based on this information, provide a list of 3-5 suitable crops. For each crop, explain the reasoning, estimate its profitability, and list specific suitable regions within the given location. Consider factors like climate suitability, soil compatibility, water requirements, market demand (referencing Indian markets), and resistance to common local pests.

Return the result as a JSON array matching the provided schema.`,
		location, soil, formatNumber(rainfall))
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
