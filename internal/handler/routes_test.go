package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shortclick/shortclick/internal/geo"
	"github.com/shortclick/shortclick/internal/handler/dto"
	"github.com/shortclick/shortclick/internal/kvstore"
	"github.com/shortclick/shortclick/internal/metrics"
	"github.com/shortclick/shortclick/internal/model"
	"github.com/shortclick/shortclick/internal/ratelimit"
	"github.com/shortclick/shortclick/internal/repository"
	"github.com/shortclick/shortclick/internal/service"
	"github.com/shortclick/shortclick/internal/testutil"
)

const testBaseURL = "http://sho.rt"

type testApp struct {
	router  *chi.Mux
	clock   *model.ManualClock
	store   *repository.BlobRepository
	metrics *metrics.InMemoryRecorder
}

func newTestApp(t *testing.T, redirectLimiter ratelimit.Limiter) *testApp {
	t.Helper()

	logger := testutil.Logger()
	clock := model.NewManualClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	recorder := metrics.NewInMemory()
	store := repository.NewBlobRepository(kvstore.NewMemory(), nil, logger, repository.WithMetrics(recorder))

	svc := service.NewShorteningService(store, nil, clock,
		service.ShorteningConfig{BaseURL: testBaseURL}, logger, nil, recorder)
	locator := geo.Static(model.GeoLocation{Country: "Japan", City: "Osaka"})
	resolver := service.NewResolver(store, locator, clock, time.Second, logger, nil, recorder)
	sweeper := service.NewSweeper(store, clock, time.Minute, false, logger)

	router := NewRouter(RouterConfig{
		Handler:         New(),
		Health:          NewHealthHandler(map[string]HealthChecker{"store": store}),
		URLs:            NewURLHandler(svc, sweeper, testBaseURL, logger),
		Redirect:        NewRedirectHandler(resolver, logger),
		Metrics:         NewMetricsHandler(recorder),
		RedirectLimiter: redirectLimiter,
		IsDevelopment:   true,
		Logger:          logger,
	})
	return &testApp{router: router, clock: clock, store: store, metrics: recorder}
}

func (a *testApp) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func TestRouter_CreateBatch(t *testing.T) {
	app := newTestApp(t, nil)

	body := `{"urls":[
		{"original_url":"https://example.com/docs","custom_short_code":"Docs1","validity_minutes":"90"},
		{"original_url":"ftp://example.com/file"},
		{"original_url":"https://example.com/num","validity_minutes":15},
		{"original_url":"https://example.com/dup","custom_short_code":"docs1"}
	]}`
	rec := app.do(t, http.MethodPost, "/api/v1/urls", body, map[string]string{"Content-Type": "application/json"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[dto.CreateURLsResponse](t, rec)
	if resp.Accepted != 2 || resp.Rejected != 2 {
		t.Fatalf("accepted/rejected = %d/%d", resp.Accepted, resp.Rejected)
	}

	first := resp.Results[0]
	if first.Status != dto.StatusAccepted || first.URL == nil {
		t.Fatalf("first result = %+v", first)
	}
	if first.URL.ShortURL != testBaseURL+"/Docs1" || first.URL.ValidityMinutes != 90 {
		t.Errorf("first url = %+v", first.URL)
	}
	if first.URL.TimeRemaining != "1h 30m" {
		t.Errorf("time remaining = %q", first.URL.TimeRemaining)
	}

	second := resp.Results[1]
	if second.Status != dto.StatusRejected || len(second.Errors) == 0 {
		t.Fatalf("second result = %+v", second)
	}
	if second.Errors[0].Field != "original_url" || second.Errors[0].Code != "MALFORMED_URL" {
		t.Errorf("second error = %+v", second.Errors[0])
	}
	if !strings.Contains(second.Errors[0].Message, "http:// or https://") {
		t.Errorf("scheme message = %q", second.Errors[0].Message)
	}

	if resp.Results[2].URL == nil || resp.Results[2].URL.ValidityMinutes != 15 {
		t.Errorf("numeric validity not honored: %+v", resp.Results[2])
	}
	if resp.Results[3].Errors[0].Code != "DUPLICATE" {
		t.Errorf("duplicate error = %+v", resp.Results[3].Errors)
	}
}

func TestRouter_CreateBatchErrors(t *testing.T) {
	app := newTestApp(t, nil)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"invalid json", `{"urls":`, http.StatusBadRequest, "INVALID_JSON"},
		{"empty batch", `{"urls":[]}`, http.StatusBadRequest, "EMPTY_BATCH"},
		{"too many", `{"urls":[{},{},{},{},{},{}]}`, http.StatusRequestEntityTooLarge, "BATCH_TOO_LARGE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(t, http.MethodPost, "/api/v1/urls", tt.body, nil)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			if got := decode[dto.ErrorResponse](t, rec); got.Code != tt.wantErr {
				t.Errorf("expected code %s, got %s", tt.wantErr, got.Code)
			}
		})
	}
}

func TestRouter_RedirectFlow(t *testing.T) {
	app := newTestApp(t, nil)

	rec := app.do(t, http.MethodPost, "/api/v1/urls",
		`{"urls":[{"original_url":"https://example.com/landing","custom_short_code":"Promo","validity_minutes":"1"}]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}

	rec = app.do(t, http.MethodGet, "/promo", "", map[string]string{
		"Referer":         "https://social.example.net/feed",
		"User-Agent":      "test-agent",
		"X-Forwarded-For": "203.0.113.50",
	})
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://example.com/landing" {
		t.Errorf("Location = %q", loc)
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("redirects must not be cacheable")
	}

	rec = app.do(t, http.MethodGet, "/api/v1/urls/PROMO", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}
	detail := decode[dto.URLResponse](t, rec)
	if detail.ClickCount != 1 || len(detail.Clicks) != 1 {
		t.Fatalf("click count = %d, clicks = %d", detail.ClickCount, len(detail.Clicks))
	}
	click := detail.Clicks[0]
	if click.Source != "social.example.net" || click.Country != "Japan" || click.City != "Osaka" || click.UserAgent != "test-agent" {
		t.Errorf("click = %+v", click)
	}

	stored, err := app.store.FindByShortCode(t.Context(), "promo")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Clicks[0].IPAddress != "203.0.113.50" {
		t.Errorf("ip = %q", stored.Clicks[0].IPAddress)
	}

	app.clock.Advance(2 * time.Minute)

	rec = app.do(t, http.MethodGet, "/Promo", "", nil)
	if rec.Code != http.StatusGone {
		t.Fatalf("expected 410, got %d", rec.Code)
	}
	if got := decode[dto.ErrorResponse](t, rec); got.Code != "LINK_EXPIRED" {
		t.Errorf("code = %s", got.Code)
	}

	rec = app.do(t, http.MethodGet, "/nosuch", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := decode[dto.ErrorResponse](t, rec); got.Code != "LINK_NOT_FOUND" {
		t.Errorf("code = %s", got.Code)
	}
}

func TestRouter_ListStatsAndSweep(t *testing.T) {
	app := newTestApp(t, nil)

	app.do(t, http.MethodPost, "/api/v1/urls", `{"urls":[
		{"original_url":"https://example.com/a","custom_short_code":"short1","validity_minutes":"1"},
		{"original_url":"https://example.com/b","custom_short_code":"long01","validity_minutes":"600"}
	]}`, nil)
	app.do(t, http.MethodGet, "/long01", "", nil)

	stats := decode[model.Stats](t, app.do(t, http.MethodGet, "/api/v1/stats", "", nil))
	if stats != (model.Stats{TotalURLs: 2, ActiveURLs: 2, TotalClicks: 1}) {
		t.Errorf("stats = %+v", stats)
	}

	app.clock.Advance(5 * time.Minute)

	list := decode[dto.URLListResponse](t, app.do(t, http.MethodGet, "/api/v1/urls", "", nil))
	if list.Count != 2 {
		t.Fatalf("count = %d", list.Count)
	}
	statuses := map[string]string{}
	for _, u := range list.Data {
		statuses[u.ShortCode] = u.Status + "/" + u.TimeRemaining
	}
	if statuses["short1"] != "expired/Expired" || statuses["long01"] != "active/9h 55m" {
		t.Errorf("statuses = %v", statuses)
	}

	rec := app.do(t, http.MethodPost, "/api/v1/sweep", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sweep: %d", rec.Code)
	}
	if got := decode[dto.SweepResponse](t, rec); got.Remaining != 1 {
		t.Errorf("remaining = %d", got.Remaining)
	}

	rec = app.do(t, http.MethodGet, "/api/v1/urls/short1", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("swept record should be gone, got %d", rec.Code)
	}
}

func TestRouter_RedirectRateLimited(t *testing.T) {
	limiter := ratelimit.NewMemory(ratelimit.Config{RatePerSecond: 1, Burst: 1})
	app := newTestApp(t, limiter)

	headers := map[string]string{"X-Forwarded-For": "198.51.100.20"}
	if rec := app.do(t, http.MethodGet, "/whatever", "", headers); rec.Code != http.StatusNotFound {
		t.Fatalf("first request: %d", rec.Code)
	}
	if rec := app.do(t, http.MethodGet, "/whatever", "", headers); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: %d", rec.Code)
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	app := newTestApp(t, nil)

	if rec := app.do(t, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("readyz: %d", rec.Code)
	}

	app.do(t, http.MethodGet, "/missing1", "", nil)

	rec := app.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`shortclick_redirects_total{status="not_found"} 1`)) {
		t.Errorf("metrics body missing redirect counter:\n%s", rec.Body.String())
	}
}

func TestFlexString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"validity_minutes":"45"}`, "45"},
		{`{"validity_minutes":45}`, "45"},
		{`{"validity_minutes":null}`, ""},
		{`{}`, ""},
		{`{"validity_minutes":1.5}`, "1.5"},
	}
	for _, tt := range tests {
		var item dto.CreateURLItem
		if err := json.Unmarshal([]byte(tt.in), &item); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.in, err)
		}
		if string(item.ValidityMinutes) != tt.want {
			t.Errorf("%s -> %q, want %q", tt.in, item.ValidityMinutes, tt.want)
		}
	}
}

func TestRouter_ReservedCodesKeepOperationalRoutes(t *testing.T) {
	app := newTestApp(t, nil)

	for _, code := range []string{"healthz", "readyz", "metrics"} {
		t.Run(code, func(t *testing.T) {
			body := `{"urls":[{"original_url":"https://example.com/x","custom_short_code":"` + code + `"}]}`
			resp := decode[dto.CreateURLsResponse](t, app.do(t, http.MethodPost, "/api/v1/urls", body, nil))
			if resp.Accepted != 0 || len(resp.Results[0].Errors) == 0 {
				t.Fatalf("code %q should be rejected: %+v", code, resp.Results[0])
			}
			if got := resp.Results[0].Errors[0].Code; got != "RESERVED" {
				t.Errorf("error code = %s, want RESERVED", got)
			}

			rec := app.do(t, http.MethodGet, "/"+code, "", nil)
			if rec.Code != http.StatusOK || rec.Header().Get("Location") != "" {
				t.Errorf("GET /%s = %d location %q", code, rec.Code, rec.Header().Get("Location"))
			}
		})
	}
}
