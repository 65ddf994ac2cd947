//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/farm-connect/internal/advisor"
	"github.com/ashureev/farm-connect/internal/dashboard"
	"github.com/ashureev/farm-connect/internal/domain"
	"github.com/ashureev/farm-connect/internal/identity"
	"github.com/ashureev/farm-connect/internal/llm"
	"github.com/ashureev/farm-connect/internal/llm/llmtest"
	"github.com/ashureev/farm-connect/internal/mediator"
	"github.com/ashureev/farm-connect/internal/refdata"
	"github.com/ashureev/farm-connect/internal/store"
)

const testUserID = "anon_0123456789abcdef0123456789abcdef"

type testServer struct {
	router  chi.Router
	repo    *store.SQLiteStore
	handler *Handler
}

// newTestServer wires the handlers the way the server does, with identity
// taken from the X-Test-Tab header instead of a cookie. A nil gen disables AI.
func newTestServer(t *testing.T, gen *llmtest.Generator, maxUpload int64) *testServer {
	t.Helper()

	repo, err := store.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	now := time.Now()
	if err := repo.UpsertUser(context.Background(), &domain.User{
		UserID: testUserID, Username: "farmer-abcdef", LastSeenAt: now, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	catalog, err := refdata.Load()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	var g llm.Generator
	if gen != nil {
		g = gen
	}
	adv := advisor.New(g, catalog)
	registry := dashboard.NewRegistry(adv, dashboard.WithHooks(dashboard.Hooks{
		OnOutcome: UsageRecorder(repo, testLogger()),
	}))

	h := NewHandler(Options{
		Repo:           repo,
		Registry:       registry,
		Advisor:        adv,
		Model:          llm.DefaultModel,
		MaxUploadBytes: maxUpload,
	})

	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				ctx := identity.WithIdentity(req.Context(), testUserID, req.Header.Get("X-Test-Tab"))
				next.ServeHTTP(w, req.WithContext(ctx))
			})
		})
		h.RegisterRoutes(r)
	})
	return &testServer{router: r, repo: repo, handler: h}
}

func (s *testServer) do(t *testing.T, req *http.Request, out any) *http.Response {
	t.Helper()
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	resp := rec.Result()
	if out != nil {
		body, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("decode %s %s response %q: %v", req.Method, req.URL.Path, body, err)
		}
	}
	return resp
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

const fertilizerReply = `{"npkRatio":"4:2:1","recommendations":[{"stage":"Basal Dose","fertilizer":"DAP","amount":"50 kg/acre"}],"notes":[],"organicAlternatives":["Neem Cake"]}`

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{mediator.ErrBusy, http.StatusConflict},
		{mediator.ValidationError("crop", "Please enter a crop."), http.StatusBadRequest},
		{mediator.UnavailableError("off", nil), http.StatusServiceUnavailable},
		{&mediator.Error{Kind: mediator.KindRemote}, http.StatusBadGateway},
		{mediator.DecodeError(errors.New("bad")), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestSubmitFertilizer(t *testing.T) {
	gen := llmtest.New(llmtest.Text(fertilizerReply))
	s := newTestServer(t, gen, 0)

	var view struct {
		State  mediator.State        `json:"state"`
		Result domain.FertilizerPlan `json:"result"`
	}
	resp := s.do(t, postJSON("/api/panels/fertilizer",
		`{"crop":"Wheat","nitrogen":120,"phosphorus":"60","potassium":40}`), &view)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if view.State != mediator.StateResolved || view.Result.NPKRatio != "4:2:1" {
		t.Fatalf("unexpected view %+v", view)
	}
	if !strings.Contains(gen.Prompts()[0].Text, "Nitrogen (N): 120 kg/ha") {
		t.Errorf("numeric JSON value not forwarded: %q", gen.Prompts()[0].Text)
	}

	usage, err := s.repo.UsageSummary(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("UsageSummary: %v", err)
	}
	if len(usage) != 1 || usage[0].Panel != advisor.PanelFertilizer || usage[0].Total != 1 {
		t.Errorf("unexpected usage %+v", usage)
	}
}

func TestSubmitValidationError(t *testing.T) {
	gen := llmtest.New()
	s := newTestServer(t, gen, 0)

	var body ErrorBody
	resp := s.do(t, postJSON("/api/panels/fertilizer", `{"crop":"Wheat","nitrogen":"lots"}`), &body)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
	if body.Kind != string(mediator.KindValidation) || body.Error == "" {
		t.Errorf("unexpected body %+v", body)
	}
	if body.View == nil || body.View.State != mediator.StateResolved {
		t.Errorf("expected resolved view with error, got %+v", body.View)
	}
	if gen.Calls() != 0 {
		t.Errorf("validation failure must not call the model, got %d calls", gen.Calls())
	}
}

func TestSubmitRemoteFailure(t *testing.T) {
	s := newTestServer(t, llmtest.New(llmtest.Fail(errors.New("connection reset"))), 0)

	var body ErrorBody
	resp := s.do(t, postJSON("/api/panels/price-forecast", `{"crop":"Onion"}`), &body)

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d", resp.StatusCode)
	}
	if strings.Contains(body.Error, "connection reset") {
		t.Errorf("transport detail leaked to client: %q", body.Error)
	}
}

func TestSubmitUnavailable(t *testing.T) {
	s := newTestServer(t, nil, 0)

	var body ErrorBody
	resp := s.do(t, postJSON("/api/panels/price-forecast", `{"crop":"Onion"}`), &body)

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", resp.StatusCode)
	}
	if body.Error != advisor.UnavailableMessage {
		t.Errorf("unexpected message %q", body.Error)
	}
}

func TestUnknownPanel(t *testing.T) {
	s := newTestServer(t, llmtest.New(), 0)

	for _, req := range []*http.Request{
		postJSON("/api/panels/horoscope", `{}`),
		httptest.NewRequest(http.MethodGet, "/api/panels/horoscope", nil),
		httptest.NewRequest(http.MethodDelete, "/api/panels/horoscope", nil),
	} {
		if resp := s.do(t, req, nil); resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", req.Method, resp.StatusCode)
		}
	}
}

func TestCropDoctorMultipart(t *testing.T) {
	gen := llmtest.New(llmtest.Text(`{"isHealthy":false,"diseaseName":"Leaf Rust","description":"Orange pustules.","treatment":["Spray propiconazole."]}`))
	s := newTestServer(t, gen, 0)

	image := []byte("\x89PNG\r\n\x1a\nfake-image")
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="image"; filename="leaf.png"`)
	hdr.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(image)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/panels/crop-doctor", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var view struct {
		Result domain.Diagnosis `json:"result"`
	}
	resp := s.do(t, req, &view)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if view.Result.DiseaseName != "Leaf Rust" {
		t.Errorf("unexpected diagnosis %+v", view.Result)
	}

	p := gen.Prompts()[0]
	if p.Image == nil || p.Image.MIMEType != "image/png" || p.Image.Data != base64.StdEncoding.EncodeToString(image) {
		t.Errorf("image not forwarded as base64: %+v", p.Image)
	}
}

func TestCropDoctorRejectsMalformedImage(t *testing.T) {
	gen := llmtest.New()
	s := newTestServer(t, gen, 0)

	var body ErrorBody
	resp := s.do(t, postJSON("/api/panels/crop-doctor", `{"image":"not base64!","mime_type":"image/png"}`), &body)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
	if body.Kind != string(mediator.KindValidation) || body.Field != "image" {
		t.Errorf("unexpected body %+v", body)
	}
	if gen.Calls() != 0 {
		t.Errorf("malformed image must not call the model, got %d calls", gen.Calls())
	}
}

func TestUploadTooLarge(t *testing.T) {
	gen := llmtest.New()
	s := newTestServer(t, gen, 32)

	body := fmt.Sprintf(`{"image":%q}`, strings.Repeat("A", 128))
	resp := s.do(t, postJSON("/api/panels/crop-doctor", body), nil)

	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("Expected 413, got %d", resp.StatusCode)
	}
	if gen.Calls() != 0 {
		t.Errorf("oversized upload reached the model")
	}
}

func TestTabsAreIsolatedAndResettable(t *testing.T) {
	s := newTestServer(t, llmtest.New(llmtest.Text("Prices should rise 5% next month.")), 0)

	req := postJSON("/api/panels/price-forecast", `{"crop":"Onion"}`)
	req.Header.Set("X-Test-Tab", "tab-a")
	if resp := s.do(t, req, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d", resp.StatusCode)
	}

	var view mediator.View
	other := httptest.NewRequest(http.MethodGet, "/api/panels/price-forecast", nil)
	other.Header.Set("X-Test-Tab", "tab-b")
	s.do(t, other, &view)
	if view.State != mediator.StateIdle {
		t.Errorf("other tab should be idle, got %s", view.State)
	}

	reset := httptest.NewRequest(http.MethodDelete, "/api/panels/price-forecast", nil)
	reset.Header.Set("X-Test-Tab", "tab-a")
	s.do(t, reset, &view)
	if view.State != mediator.StateIdle || view.Result != nil {
		t.Errorf("reset should return to idle, got %+v", view)
	}
}

func TestListPanels(t *testing.T) {
	s := newTestServer(t, nil, 0)

	var body struct {
		Panels []PanelInfo `json:"panels"`
	}
	s.do(t, httptest.NewRequest(http.MethodGet, "/api/panels", nil), &body)

	names := advisor.PanelNames()
	if len(body.Panels) != len(names) {
		t.Fatalf("expected %d panels, got %d", len(names), len(body.Panels))
	}
	for i, p := range body.Panels {
		if p.Name != names[i] || p.Available || len(p.Fields) == 0 {
			t.Errorf("unexpected panel %d: %+v", i, p)
		}
	}
}

func TestReferenceEndpoints(t *testing.T) {
	s := newTestServer(t, nil, 0)

	var schemes struct {
		Central []domain.Scheme `json:"central"`
		State   []domain.Scheme `json:"state"`
	}
	s.do(t, httptest.NewRequest(http.MethodGet, "/api/schemes?q=no-such-scheme", nil), &schemes)
	if schemes.Central == nil || schemes.State == nil || len(schemes.Central)+len(schemes.State) != 0 {
		t.Errorf("expected empty non-null lists, got %+v", schemes)
	}

	var prices struct {
		Prices []domain.MarketPrice `json:"prices"`
		Crops  []string             `json:"crops"`
	}
	s.do(t, httptest.NewRequest(http.MethodGet, "/api/market/prices?q=onion", nil), &prices)
	if len(prices.Prices) == 0 || len(prices.Crops) == 0 {
		t.Errorf("expected onion prices and crops, got %+v", prices)
	}

	resp := s.do(t, httptest.NewRequest(http.MethodGet, "/api/weather", nil), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("weather without location: expected 400, got %d", resp.StatusCode)
	}

	var weather domain.Weather
	s.do(t, httptest.NewRequest(http.MethodGet, "/api/weather?location=Pune", nil), &weather)
	if weather.Location != "Pune" || len(weather.Forecast) == 0 {
		t.Errorf("unexpected weather %+v", weather)
	}

	var ref map[string]json.RawMessage
	s.do(t, httptest.NewRequest(http.MethodGet, "/api/reference", nil), &ref)
	for _, key := range []string{"soil_types", "financial_needs", "financial_products"} {
		if _, ok := ref[key]; !ok {
			t.Errorf("reference missing %q", key)
		}
	}
}

func TestGetMeIncludesUsage(t *testing.T) {
	s := newTestServer(t, llmtest.New(llmtest.Fail(errors.New("timeout"))), 0)
	s.do(t, postJSON("/api/panels/price-forecast", `{"crop":"Onion"}`), nil)

	var me struct {
		UserID string                `json:"user_id"`
		Usage  []domain.UsageSummary `json:"usage"`
	}
	s.do(t, httptest.NewRequest(http.MethodGet, "/api/me", nil), &me)

	if me.UserID != testUserID {
		t.Errorf("unexpected user %q", me.UserID)
	}
	if len(me.Usage) != 1 || me.Usage[0].Failures != 1 {
		t.Errorf("expected one failed forecast, got %+v", me.Usage)
	}
}

func TestGetMeUnauthorized(t *testing.T) {
	s := newTestServer(t, llmtest.New(), 0)

	for _, userID := range []string{"", "anon_ffffffffffffffffffffffffffffffff"} {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req = req.WithContext(identity.WithIdentity(req.Context(), userID, "tab"))
		rec := httptest.NewRecorder()
		s.handler.GetMe(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("user %q: expected 401, got %d", userID, rec.Code)
		}
		var body ErrorBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Kind != KindUnauthorized {
			t.Errorf("user %q: expected kind %q, got %q", userID, KindUnauthorized, body.Kind)
		}
	}
}

func TestConfigAndHealth(t *testing.T) {
	s := newTestServer(t, nil, 0)

	var cfg map[string]any
	s.do(t, httptest.NewRequest(http.MethodGet, "/api/config", nil), &cfg)
	if cfg["ai_enabled"] != false || cfg["model"] != llm.DefaultModel {
		t.Errorf("unexpected config %+v", cfg)
	}

	var health map[string]any
	resp := s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil), &health)
	if resp.StatusCode != http.StatusOK || health["status"] != "degraded" {
		t.Errorf("expected degraded health without AI, got %d %+v", resp.StatusCode, health)
	}

	_ = s.repo.Close()
	resp = s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil), &health)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after database close, got %d", resp.StatusCode)
	}
}
