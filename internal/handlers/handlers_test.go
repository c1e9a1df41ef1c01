package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/example/plant-identifier/internal/auth"
	"github.com/example/plant-identifier/internal/identify"
	"github.com/example/plant-identifier/internal/repository"
	"github.com/example/plant-identifier/internal/upload"
	"github.com/example/plant-identifier/internal/usecase"
	"github.com/example/plant-identifier/internal/visualsearch"
)

const testJWTSecret = "test-secret"

type stubUploader struct {
	configured bool
	secureURL  string
	calls      int
}

func (s *stubUploader) Configured() bool { return s.configured }

func (s *stubUploader) Upload(ctx context.Context, req upload.Request) (*upload.Result, error) {
	s.calls++
	return &upload.Result{SecureURL: s.secureURL, PublicID: req.PublicID}, nil
}

type stubSearcher struct {
	configured bool
	response   *visualsearch.Response
	calls      int
}

func (s *stubSearcher) Configured() bool { return s.configured }

func (s *stubSearcher) Search(ctx context.Context, imageURL string) (*visualsearch.Response, error) {
	s.calls++
	return s.response, nil
}

type stubRepository struct {
	logs []*repository.IdentificationLog
}

func (s *stubRepository) SaveLog(ctx context.Context, log *repository.IdentificationLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func (s *stubRepository) FindByRequestID(ctx context.Context, requestID string) (*repository.IdentificationLog, error) {
	for _, log := range s.logs {
		if log.RequestID == requestID {
			return log, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubRepository) AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error) {
	return &repository.MetricsAggregation{TotalCount: int64(len(s.logs)), SuccessCount: int64(len(s.logs))}, nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, key string) (bool, error) { return false, nil }

type fixture struct {
	router   *gin.Engine
	uploader *stubUploader
	searcher *stubSearcher
}

func newFixture(t *testing.T, search *visualsearch.Response, opts Options, repo usecase.IdentificationRepository) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	up := &stubUploader{configured: true, secureURL: "https://res.cloudinary.com/demo/plant.jpg"}
	searcher := &stubSearcher{configured: true, response: search}
	uc := usecase.NewIdentificationUseCase(up, searcher, repo, zap.NewNop())

	router := gin.New()
	RegisterRoutes(router, uc, opts)
	return &fixture{router: router, uploader: up, searcher: searcher}
}

func (f *fixture) post(t *testing.T, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, identify.Route, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) identify.ErrorResponse {
	t.Helper()
	var out identify.ErrorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode error body %q: %v", resp.Body.String(), err)
	}
	return out
}

func TestIdentifyReturnsMappedLists(t *testing.T) {
	f := newFixture(t, &visualsearch.Response{
		RelatedContent: []visualsearch.RelatedContent{
			{Query: "Monstera deliciosa", Thumbnail: "https://t/1.jpg"},
			{Query: "Swiss cheese plant", Thumbnail: "https://t/2.jpg"},
		},
		VisualMatches: []visualsearch.VisualMatch{
			{Title: "a", Link: "https://a", Thumbnail: "https://t/a.jpg", Image: "https://i/a.jpg"},
			{Title: "b", Link: "https://b", Thumbnail: "https://t/b.jpg", Image: "https://i/b.jpg"},
			{Title: "c", Link: "https://c", Thumbnail: "https://t/c.jpg", Image: "https://i/c.jpg"},
		},
	}, Options{}, nil)

	resp := f.post(t, `{"imageData":"data:image/jpeg;base64,/9j/4AAQ"}`, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var out identify.Response
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if !out.Success || len(out.PossibleNames) != 2 || len(out.Matches) != 3 {
		t.Fatalf("unexpected response: %+v", out)
	}
	if out.PossibleNames[0].Name != "Monstera deliciosa" || out.Matches[2].Image != "https://i/c.jpg" {
		t.Fatalf("mapping changed order or fields: %+v", out)
	}
}

func TestIdentifyEmptyResultsEncodeAsEmptyArrays(t *testing.T) {
	f := newFixture(t, &visualsearch.Response{}, Options{}, nil)

	resp := f.post(t, `{"imageData":"data:image/png;base64,QUJD"}`, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Body.String(); got != `{"success":true,"possibleNames":[],"matches":[]}` {
		t.Fatalf("unexpected body: %s", got)
	}
}

func TestIdentifyRejectsMissingImageData(t *testing.T) {
	for _, body := range []string{`{}`, `{"imageData":""}`, ``} {
		f := newFixture(t, &visualsearch.Response{}, Options{}, nil)

		resp := f.post(t, body, nil)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, resp.Code)
		}
		if got := decodeError(t, resp).Error; got != "Image data is required" {
			t.Fatalf("body %q: unexpected error %q", body, got)
		}
		if f.uploader.calls != 0 || f.searcher.calls != 0 {
			t.Fatalf("body %q: upstream must not be called", body)
		}
	}
}

func TestIdentifySetsRequestIDOnFailures(t *testing.T) {
	f := newFixture(t, &visualsearch.Response{}, Options{}, nil)
	f.searcher.configured = false

	resp := f.post(t, `{"imageData":"data:image/png;base64,"}`, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a payload-less data URI, got %d", resp.Code)
	}
	if resp.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected request id header")
	}

	resp = f.post(t, `{"imageData":"QUJD"}`, nil)
	if resp.Code != http.StatusInternalServerError || resp.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected 500 with request id, got %d %v", resp.Code, resp.Header())
	}
}

func TestIdentifyRejectsMalformedJSON(t *testing.T) {
	f := newFixture(t, &visualsearch.Response{}, Options{}, nil)

	resp := f.post(t, `{"imageData":`, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if f.uploader.calls != 0 {
		t.Fatal("upstream must not be called")
	}
}

func TestIdentifyReportsMissingSearchKey(t *testing.T) {
	f := newFixture(t, &visualsearch.Response{}, Options{}, nil)
	f.searcher.configured = false

	resp := f.post(t, `{"imageData":"data:image/png;base64,QUJD"}`, nil)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if got := decodeError(t, resp).Error; !strings.Contains(got, "key not configured") {
		t.Fatalf("unexpected error %q", got)
	}
	if f.uploader.calls != 0 {
		t.Fatal("upload step must not be reached")
	}
}

func TestIdentifyFailsWithoutHostedURL(t *testing.T) {
	f := newFixture(t, &visualsearch.Response{}, Options{}, nil)
	f.uploader.secureURL = ""

	resp := f.post(t, `{"imageData":"QUJD"}`, nil)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	body := decodeError(t, resp)
	if body.Error != "Failed to identify plant" || body.Details != "failed to obtain hosted URL" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if f.searcher.calls != 0 {
		t.Fatal("search must not be invoked")
	}
}

func TestIdentifyRejectsLargeUpload(t *testing.T) {
	f := newFixture(t, &visualsearch.Response{}, Options{MaxBodyBytes: 64}, nil)

	payload := `{"imageData":"` + strings.Repeat("a", 128) + `"}`
	resp := f.post(t, payload, nil)

	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
	if f.uploader.calls != 0 {
		t.Fatal("upstream must not be called")
	}
}

func TestIdentifyRateLimited(t *testing.T) {
	f := newFixture(t, &visualsearch.Response{}, Options{Limiter: denyLimiter{}}, nil)

	resp := f.post(t, `{"imageData":"QUJD"}`, nil)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
}

func TestIdentifyRequiresTokenWhenAuthEnabled(t *testing.T) {
	f := newFixture(t, &visualsearch.Response{}, Options{Auth: auth.JWTMiddleware(testJWTSecret, "")}, nil)

	resp := f.post(t, `{"imageData":"QUJD"}`, nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+buildTestToken(t, "user-123"))
	resp = f.post(t, `{"imageData":"QUJD"}`, header)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAuditRoutesOnlyWithRepository(t *testing.T) {
	f := newFixture(t, &visualsearch.Response{}, Options{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/metrics/summary", nil)
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected audit routes to be absent, got %d", resp.Code)
	}

	repo := &stubRepository{}
	f = newFixture(t, &visualsearch.Response{}, Options{}, repo)
	posted := f.post(t, `{"imageData":"QUJD"}`, nil)
	if posted.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", posted.Code)
	}
	requestID := posted.Header().Get(RequestIDHeader)
	if requestID == "" {
		t.Fatal("expected request id header on identify response")
	}
	if len(repo.logs) != 1 || repo.logs[0].RequestID != requestID {
		t.Fatalf("expected one audit log keyed by %q, got %+v", requestID, repo.logs)
	}

	resp = httptest.NewRecorder()
	f.router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/identifications/"+requestID, nil))
	if resp.Code != http.StatusOK || !bytes.Contains(resp.Body.Bytes(), []byte(`"outcome":"empty"`)) {
		t.Fatalf("unexpected audit lookup: %d %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	f.router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/identifications/unknown", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	f.router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/metrics/summary", nil))
	if resp.Code != http.StatusOK || !bytes.Contains(resp.Body.Bytes(), []byte(`"total_requests":1`)) {
		t.Fatalf("unexpected summary: %d %s", resp.Code, resp.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, &visualsearch.Response{}, Options{}, nil)

	for _, path := range []string{"/health", "/metrics"} {
		resp := httptest.NewRecorder()
		f.router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
	}
}

func buildTestToken(t *testing.T, subject string) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}
