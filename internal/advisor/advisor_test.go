package advisor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ashureev/farm-connect/internal/domain"
	"github.com/ashureev/farm-connect/internal/llm/llmtest"
	"github.com/ashureev/farm-connect/internal/mediator"
	"github.com/ashureev/farm-connect/internal/refdata"
)

func newAdvisor(t *testing.T, replies ...llmtest.Reply) (*Advisor, *llmtest.Generator) {
	t.Helper()
	catalog, err := refdata.Load()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	gen := llmtest.New(replies...)
	return New(gen, catalog), gen
}

const fertilizerReply = `{
  "npkRatio": "4:2:1",
  "recommendations": [
    {"stage": "Basal Dose", "fertilizer": "DAP", "amount": "50 kg/acre"},
    {"stage": "Tillering Stage", "fertilizer": "Urea", "amount": "35 kg/acre"}
  ],
  "notes": ["Apply urea in split doses."],
  "organicAlternatives": ["Vermi-compost", "Neem Cake"]
}`

func TestFertilizerResultEqualsPayload(t *testing.T) {
	a, gen := newAdvisor(t, llmtest.Text(fertilizerReply))
	m := mediator.New(a.Fertilizer())

	got, err := m.Submit(context.Background(), mediator.Fields{
		"crop": "Wheat", "nitrogen": "120", "phosphorus": "60", "potassium": "40",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	want := domain.FertilizerPlan{
		NPKRatio: "4:2:1",
		Recommendations: []domain.FertilizerStage{
			{Stage: "Basal Dose", Fertilizer: "DAP", Amount: "50 kg/acre"},
			{Stage: "Tillering Stage", Fertilizer: "Urea", Amount: "35 kg/acre"},
		},
		Notes:               []string{"Apply urea in split doses."},
		OrganicAlternatives: []string{"Vermi-compost", "Neem Cake"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}

	prompts := gen.Prompts()
	if len(prompts) != 1 {
		t.Fatalf("expected one remote call, got %d", len(prompts))
	}
	for _, fragment := range []string{"Crop: Wheat", "Nitrogen (N): 120 kg/ha", "Phosphorus (P): 60 kg/ha", "Potassium (K): 40 kg/ha"} {
		if !strings.Contains(prompts[0].Text, fragment) {
			t.Errorf("prompt missing %q", fragment)
		}
	}
	if prompts[0].Schema == nil || prompts[0].Temperature == nil || *prompts[0].Temperature != 0.2 {
		t.Errorf("expected schema-constrained prompt at temperature 0.2, got %+v", prompts[0])
	}
}

func TestFertilizerEmptyListsAreNeverNil(t *testing.T) {
	a, _ := newAdvisor(t, llmtest.Text(`{"npkRatio":"1:1:1","recommendations":[],"notes":[],"organicAlternatives":[]}`))
	got, err := mediator.New(a.Fertilizer()).Submit(context.Background(), mediator.Fields{
		"crop": "Rice", "nitrogen": "1", "phosphorus": "1", "potassium": "1",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if got.Recommendations == nil || got.Notes == nil || got.OrganicAlternatives == nil {
		t.Fatalf("nil list in %+v", got)
	}
}

func TestFertilizerMissingKeyIsDecodeError(t *testing.T) {
	a, _ := newAdvisor(t, llmtest.Text(`{"recommendations":[]}`))
	m := mediator.New(a.Fertilizer())

	_, err := m.Submit(context.Background(), mediator.Fields{
		"crop": "Wheat", "nitrogen": "120", "phosphorus": "60", "potassium": "40",
	})
	var merr *mediator.Error
	if !errors.As(err, &merr) || merr.Kind != mediator.KindDecode {
		t.Fatalf("expected decode error, got %v", err)
	}
	if merr.Message != "Failed to get a fertilizer recommendation from the AI. Please check the input values." {
		t.Fatalf("unexpected message %q", merr.Message)
	}
}

func TestCropDoctorWithoutImage(t *testing.T) {
	a, gen := newAdvisor(t)
	m := mediator.New(a.CropDoctor())

	_, err := m.Submit(context.Background(), mediator.Fields{})
	var merr *mediator.Error
	if !errors.As(err, &merr) || merr.Kind != mediator.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if merr.Message != "Please provide an image of the affected plant." {
		t.Fatalf("unexpected message %q", merr.Message)
	}
	if gen.Calls() != 0 {
		t.Fatalf("expected zero remote calls, got %d", gen.Calls())
	}
}

func TestCropDoctorSendsImage(t *testing.T) {
	a, gen := newAdvisor(t, llmtest.Text(`{"isHealthy":true,"diseaseName":"Healthy","description":"Leaf looks fine.","treatment":[]}`))

	got, err := mediator.New(a.CropDoctor()).Submit(context.Background(), mediator.Fields{
		"image": "aGVsbG8=", "mime_type": "image/png",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	want := domain.Diagnosis{IsHealthy: true, DiseaseName: "Healthy", Description: "Leaf looks fine.", Treatment: []string{}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("diagnosis mismatch (-want +got):\n%s", diff)
	}

	p := gen.Prompts()[0]
	if p.Image == nil || p.Image.Data != "aGVsbG8=" || p.Image.MIMEType != "image/png" {
		t.Fatalf("image not forwarded: %+v", p.Image)
	}
}

func TestCropRecommendationRejectsUnknownSoil(t *testing.T) {
	a, gen := newAdvisor(t)
	_, err := mediator.New(a.CropRecommendation()).Submit(context.Background(), mediator.Fields{
		"location": "Guntur", "soil_type": "Clay", "rainfall": "900",
	})
	if mediator.KindOf(err) != mediator.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if gen.Calls() != 0 {
		t.Fatal("validation failure must not call out")
	}
}

func TestCropRecommendationDecodesArray(t *testing.T) {
	reply := `[{"cropName":"Cotton","reasoning":"Black soil retains moisture.","estimatedProfitability":"High","suitableRegions":["Guntur","Prakasam"]}]`
	a, gen := newAdvisor(t, llmtest.Text(reply))

	got, err := mediator.New(a.CropRecommendation()).Submit(context.Background(), mediator.Fields{
		"location": "Andhra Pradesh", "soil_type": "black (regur)", "rainfall": "850.5",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	want := []domain.CropSuggestion{{
		CropName: "Cotton", Reasoning: "Black soil retains moisture.",
		EstimatedProfitability: "High", SuitableRegions: []string{"Guntur", "Prakasam"},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("suggestions mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(gen.Prompts()[0].Text, "Average Annual Rainfall (mm): 850.5") {
		t.Fatalf("rainfall not in prompt: %s", gen.Prompts()[0].Text)
	}
}

func TestWeatherAdvisoryUsesMockForecast(t *testing.T) {
	a, gen := newAdvisor(t, llmtest.Text("Irrigate lightly on Wednesday."))

	got, err := mediator.New(a.WeatherAdvisory()).Submit(context.Background(), mediator.Fields{
		"location": "Nizamabad", "crop": "Turmeric",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if got != "Irrigate lightly on Wednesday." {
		t.Fatalf("unexpected advisory %q", got)
	}
	text := gen.Prompts()[0].Text
	for _, fragment := range []string{"for Nizamabad", "for Turmeric crops", "Fri: 20°C - 28°C, Thunderstorm"} {
		if !strings.Contains(text, fragment) {
			t.Errorf("prompt missing %q", fragment)
		}
	}
}

func TestFinancialPlanDefaultsDetails(t *testing.T) {
	a, gen := newAdvisor(t, llmtest.Text("Apply for KCC."))

	_, err := mediator.New(a.FinancialPlan()).Submit(context.Background(), mediator.Fields{
		"crop": "Chilli", "land_size": "2.5", "need": "Crop Production Finance",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	text := gen.Prompts()[0].Text
	if !strings.Contains(text, "Land Size: 2.5 acres") || !strings.Contains(text, "Additional Details: None") {
		t.Fatalf("unexpected prompt:\n%s", text)
	}
}

func TestPriceForecastRemoteFailure(t *testing.T) {
	a, _ := newAdvisor(t, llmtest.Fail(errors.New("503 from upstream")))
	m := mediator.New(a.PriceForecast())

	_, err := m.Submit(context.Background(), mediator.Fields{"crop": "Onion"})
	var merr *mediator.Error
	if !errors.As(err, &merr) || merr.Kind != mediator.KindRemote {
		t.Fatalf("expected remote error, got %v", err)
	}
	if merr.Message != "Failed to get a price forecast from the AI." {
		t.Fatalf("unexpected message %q", merr.Message)
	}
}

func TestUnavailableAdvisor(t *testing.T) {
	catalog, err := refdata.Load()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	a := New(nil, catalog)
	if a.Available() {
		t.Fatal("advisor without generator must be unavailable")
	}

	for _, r := range a.NewPanels() {
		if r.Available() {
			t.Errorf("panel %s should be unavailable", r.Name())
		}
		if _, err := r.Run(context.Background(), mediator.Fields{}); !errors.Is(err, mediator.ErrUnavailable) {
			t.Errorf("panel %s: expected ErrUnavailable, got %v", r.Name(), err)
		}
	}

	cfg, open, ok := a.Assistant(AssistantExpert, nil)
	if !ok {
		t.Fatal("expert assistant not found")
	}
	c := mediator.NewConversation(context.Background(), open, cfg)
	if c.Unavailable() == nil {
		t.Fatal("conversation should be unavailable")
	}
}

func TestPanelOrderMatchesNames(t *testing.T) {
	a, _ := newAdvisor(t)
	var got []string
	for _, r := range a.NewPanels() {
		got = append(got, r.Name())
	}
	if diff := cmp.Diff(PanelNames(), got); diff != "" {
		t.Fatalf("panel order mismatch (-want +got):\n%s", diff)
	}
}

func TestSchemeAssistantGroundedInCatalog(t *testing.T) {
	a, gen := newAdvisor(t, llmtest.Text("PM-KISAN pays ₹6,000 per year."), llmtest.Fail(errors.New("timeout")))

	cfg, open, ok := a.Assistant(AssistantSchemes, nil)
	if !ok {
		t.Fatal("schemes assistant not found")
	}
	c := mediator.NewConversation(context.Background(), open, cfg)

	chats := gen.Chats()
	if len(chats) != 1 {
		t.Fatalf("expected one chat session, got %d", len(chats))
	}
	for _, fragment := range []string{"Scheme Name: PM-KISAN", "Official Link: https://pmkisan.gov.in", "Scheme Name: YSR Jala Kala Scheme (AP)"} {
		if !strings.Contains(chats[0].SystemInstruction, fragment) {
			t.Errorf("instruction missing %q", fragment)
		}
	}

	if _, err := c.Send(context.Background(), "What does PM-KISAN give?"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if _, err := c.Send(context.Background(), "And KCC?"); err != nil {
		t.Fatalf("second send: %v", err)
	}

	var got []string
	for _, m := range c.Transcript() {
		got = append(got, m.Text)
	}
	want := []string{
		cfg.Greeting,
		"What does PM-KISAN give?",
		"PM-KISAN pays ₹6,000 per year.",
		"And KCC?",
		cfg.Placeholder,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("transcript mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownAssistant(t *testing.T) {
	a, _ := newAdvisor(t)
	if _, _, ok := a.Assistant("astrologer", nil); ok {
		t.Fatal("unknown assistant must not resolve")
	}
}
