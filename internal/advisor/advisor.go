// Package advisor declares the dashboard's AI panels and assistants: their
// form fields, prompts, response schemas and user-facing failure texts.
package advisor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/farm-connect/internal/domain"
	"github.com/ashureev/farm-connect/internal/llm"
	"github.com/ashureev/farm-connect/internal/mediator"
	"github.com/ashureev/farm-connect/internal/refdata"
)

// Panel names used in routes and usage records.
const (
	PanelCropDoctor         = "crop-doctor"
	PanelWeatherAdvisory    = "weather-advisory"
	PanelFinancialPlan      = "financial-plan"
	PanelFertilizer         = "fertilizer"
	PanelPriceForecast      = "price-forecast"
	PanelCropRecommendation = "crop-recommendation"
)

// UnavailableMessage is shown by every AI feature when no API key is configured.
const UnavailableMessage = "AI features are unavailable because the API key is not configured."

const imageMessage = "Please provide an image of the affected plant."

// Advisor builds panels and assistants bound to one generator and catalog.
type Advisor struct {
	gen         llm.Generator
	catalog     *refdata.Catalog
	unavailable *mediator.Error
}

// New returns an Advisor. A nil gen makes every panel and assistant
// permanently unavailable; reference data stays usable.
func New(gen llm.Generator, catalog *refdata.Catalog) *Advisor {
	a := &Advisor{gen: gen, catalog: catalog}
	if gen == nil {
		a.unavailable = mediator.UnavailableError(UnavailableMessage, llm.ErrMissingAPIKey)
	}
	return a
}

// Available reports whether remote generation is configured.
func (a *Advisor) Available() bool {
	return a.unavailable == nil
}

// Catalog returns the reference data the panels draw on.
func (a *Advisor) Catalog() *refdata.Catalog {
	return a.catalog
}

// PanelNames lists the panels in display order.
func PanelNames() []string {
	return []string{
		PanelCropDoctor,
		PanelWeatherAdvisory,
		PanelFinancialPlan,
		PanelFertilizer,
		PanelPriceForecast,
		PanelCropRecommendation,
	}
}

// NewPanels creates a fresh idle mediator for every panel, in display order.
func (a *Advisor) NewPanels(opts ...mediator.Option) []mediator.Runner {
	return []mediator.Runner{
		mediator.New(a.CropDoctor(), opts...),
		mediator.New(a.WeatherAdvisory(), opts...),
		mediator.New(a.FinancialPlan(), opts...),
		mediator.New(a.Fertilizer(), opts...),
		mediator.New(a.PriceForecast(), opts...),
		mediator.New(a.CropRecommendation(), opts...),
	}
}

// CropDoctor diagnoses a plant from a photo.
func (a *Advisor) CropDoctor() mediator.Panel[domain.Diagnosis] {
	return mediator.Panel[domain.Diagnosis]{
		Name:  PanelCropDoctor,
		Title: "Crop Doctor",
		Fields: []mediator.FieldSpec{
			{Name: "image", Label: "Image", Kind: mediator.FieldImage, Required: true, Message: imageMessage},
			{Name: "mime_type", Label: "Image Type", Kind: mediator.FieldText},
		},
		FailureMessage: "Failed to get a diagnosis from the AI. The image might be unclear or the content could not be processed.",
		Unavailable:    a.unavailable,
		Invoke: func(ctx context.Context, f mediator.Fields) (domain.Diagnosis, error) {
			prompt := llm.Prompt{
				Text:        diagnosisPrompt,
				Image:       &llm.Image{MIMEType: f.Get("mime_type"), Data: f.Get("image")},
				Schema:      diagnosisSchema,
				Temperature: llm.Temperature(0.2),
			}
			d, err := generate[domain.Diagnosis](ctx, a.gen, prompt)
			if err != nil {
				return d, err
			}
			d.Normalize()
			return d, nil
		},
	}
}

// WeatherAdvisory turns the mock weather for a location into crop advice.
func (a *Advisor) WeatherAdvisory() mediator.Panel[string] {
	return mediator.Panel[string]{
		Name:  PanelWeatherAdvisory,
		Title: "Weather Alerts & AI Advisory",
		Fields: []mediator.FieldSpec{
			{Name: "location", Label: "Location", Kind: mediator.FieldText, Required: true},
			{Name: "crop", Label: "Crop", Kind: mediator.FieldText, Required: true},
		},
		FailureMessage: "Failed to get a weather advisory from the AI.",
		Unavailable:    a.unavailable,
		Invoke: func(ctx context.Context, f mediator.Fields) (string, error) {
			weather, ok := a.catalog.Weather(f.Get("location"))
			if !ok {
				return "", fmt.Errorf("no weather for location %q", f.Get("location"))
			}
			return a.gen.Generate(ctx, llm.Prompt{Text: weatherPrompt(weather, f.Get("crop"))})
		},
	}
}

// FinancialPlan produces a personalized financing plan.
func (a *Advisor) FinancialPlan() mediator.Panel[string] {
	return mediator.Panel[string]{
		Name:  PanelFinancialPlan,
		Title: "Financial Needs",
		Fields: []mediator.FieldSpec{
			{Name: "crop", Label: "Crop", Kind: mediator.FieldText, Required: true},
			{Name: "land_size", Label: "Land Size", Kind: mediator.FieldNumber, Required: true},
			{Name: "need", Label: "Financial Need", Kind: mediator.FieldChoice, Required: true, Choices: a.catalog.FinancialNeedTitles()},
			{Name: "details", Label: "Additional Details", Kind: mediator.FieldText},
		},
		FailureMessage: "Failed to get a financial plan from the AI.",
		Unavailable:    a.unavailable,
		Invoke: func(ctx context.Context, f mediator.Fields) (string, error) {
			text := financialPrompt(f.Get("crop"), f.Get("land_size"), f.Get("need"), f.Get("details"))
			return a.gen.Generate(ctx, llm.Prompt{Text: text, Temperature: llm.Temperature(0.3)})
		},
	}
}

// Fertilizer plans fertilizer application from soil test results.
func (a *Advisor) Fertilizer() mediator.Panel[domain.FertilizerPlan] {
	return mediator.Panel[domain.FertilizerPlan]{
		Name:  PanelFertilizer,
		Title: "Fertilizer Optimizer",
		Fields: []mediator.FieldSpec{
			{Name: "crop", Label: "Crop", Kind: mediator.FieldText, Required: true},
			{Name: "nitrogen", Label: "Nitrogen (N)", Kind: mediator.FieldNumber, Required: true},
			{Name: "phosphorus", Label: "Phosphorus (P)", Kind: mediator.FieldNumber, Required: true},
			{Name: "potassium", Label: "Potassium (K)", Kind: mediator.FieldNumber, Required: true},
		},
		FailureMessage: "Failed to get a fertilizer recommendation from the AI. Please check the input values.",
		Unavailable:    a.unavailable,
		Invoke: func(ctx context.Context, f mediator.Fields) (domain.FertilizerPlan, error) {
			prompt := llm.Prompt{
				Text:        fertilizerPrompt(f.Get("crop"), f.Float("nitrogen"), f.Float("phosphorus"), f.Float("potassium")),
				Schema:      fertilizerSchema,
				Temperature: llm.Temperature(0.2),
			}
			plan, err := generate[domain.FertilizerPlan](ctx, a.gen, prompt)
			if err != nil {
				return plan, err
			}
			plan.Normalize()
			return plan, nil
		},
	}
}

// PriceForecast forecasts the short-term price trend of a crop.
func (a *Advisor) PriceForecast() mediator.Panel[string] {
	return mediator.Panel[string]{
		Name:  PanelPriceForecast,
		Title: "Market Access",
		Fields: []mediator.FieldSpec{
			{Name: "crop", Label: "Crop", Kind: mediator.FieldChoice, Required: true, Choices: a.catalog.Crops()},
		},
		FailureMessage: "Failed to get a price forecast from the AI.",
		Unavailable:    a.unavailable,
		Invoke: func(ctx context.Context, f mediator.Fields) (string, error) {
			return a.gen.Generate(ctx, llm.Prompt{Text: forecastPrompt(f.Get("crop")), Temperature: llm.Temperature(0.4)})
		},
	}
}

// CropRecommendation suggests crops for a location, soil and rainfall.
func (a *Advisor) CropRecommendation() mediator.Panel[[]domain.CropSuggestion] {
	return mediator.Panel[[]domain.CropSuggestion]{
		Name:  PanelCropRecommendation,
		Title: "AI Crop Recommendation",
		Fields: []mediator.FieldSpec{
			{Name: "location", Label: "Location", Kind: mediator.FieldText, Required: true},
			{Name: "soil_type", Label: "Soil Type", Kind: mediator.FieldChoice, Required: true, Choices: a.catalog.SoilTypes()},
			{Name: "rainfall", Label: "Annual Rainfall (mm)", Kind: mediator.FieldNumber, Required: true},
		},
		FailureMessage: "Failed to get a crop recommendation from the AI. Please check the input values.",
		Unavailable:    a.unavailable,
		Invoke: func(ctx context.Context, f mediator.Fields) ([]domain.CropSuggestion, error) {
			prompt := llm.Prompt{
				Text:        cropRecommendationPrompt(f.Get("location"), f.Get("soil_type"), f.Float("rainfall")),
				Schema:      cropRecommendationSchema,
				Temperature: llm.Temperature(0.3),
			}
			crops, err := generate[[]domain.CropSuggestion](ctx, a.gen, prompt)
			if err != nil {
				return nil, err
			}
			if crops == nil {
				crops = []domain.CropSuggestion{}
			}
			for i := range crops {
				crops[i].Normalize()
			}
			return crops, nil
		},
	}
}

// generate performs one structured call. Transport failures are returned as
// is; replies that do not fit the schema become decode errors.
func generate[T any](ctx context.Context, gen llm.Generator, p llm.Prompt) (T, error) {
	var zero T
	raw, err := gen.Generate(ctx, p)
	if err != nil {
		return zero, err
	}
	out, err := llm.Decode[T](raw, p.Schema)
	if err != nil {
		slog.Debug("Structured reply rejected", "error", err, "reply_length", len(raw))
		return zero, mediator.DecodeError(err)
	}
	return out, nil
}
