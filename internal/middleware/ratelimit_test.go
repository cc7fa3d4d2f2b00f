package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/sessiongate/internal/model"
)

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    2,
		InitRate:        1,
		InitBurst:       2,
		CleanupInterval: 1 * time.Minute,
	}
}

func requestAs(subjectID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	if subjectID == "" {
		return req
	}
	return req.WithContext(ContextWithClaim(req.Context(), model.IdentityClaim{SubjectID: subjectID}))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// --- GeneralMiddleware のテスト ---

func TestGeneralMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	cfg := testRateLimiterConfig()
	cfg.GeneralRate = 2
	cfg.GeneralBurst = 5

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handlerCallCount := 0
	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCallCount++
		w.WriteHeader(http.StatusOK)
	}))

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs("uid-1"))

		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	if handlerCallCount != 5 {
		t.Errorf("handler call count = %d, want 5", handlerCallCount)
	}
}

func TestGeneralMiddleware_Returns429WithRetryAfterHeader(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestAs("uid-1"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("uid-1"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	retryAfter := w.Header().Get("Retry-After")
	sec, err := strconv.Atoi(retryAfter)
	if err != nil || sec < 1 {
		t.Errorf("Retry-After = %q, want positive integer", retryAfter)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.ErrorCode != model.ErrCodeRateLimited {
		t.Errorf("error_code = %q, want %q", body.ErrorCode, model.ErrCodeRateLimited)
	}
}

func TestGeneralMiddleware_IsolatesSubjects(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestAs("uid-a"))
	}

	// 別subjectは影響を受けない
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("uid-b"))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", rl.GeneralLimiterCount())
	}
}

func TestGeneralMiddleware_FallsBackToClientIP(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	send := func(remote string) int {
		req := requestAs("")
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	send("10.0.0.1:1111")
	send("10.0.0.1:2222")
	if code := send("10.0.0.1:3333"); code != http.StatusTooManyRequests {
		t.Errorf("same IP: status = %d, want %d", code, http.StatusTooManyRequests)
	}
	if code := send("10.0.0.2:1111"); code != http.StatusOK {
		t.Errorf("other IP: status = %d, want %d", code, http.StatusOK)
	}
}

// --- InitMiddleware のテスト ---

func TestInitMiddleware_LimitsPerClientIP(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.InitMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/users/init", nil)
		req.RemoteAddr = "192.0.2.1:5000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/users/init", nil)
	req.RemoteAddr = "192.0.2.1:5001"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want %q", got, "1")
	}
	if rl.InitLimiterCount() != 1 {
		t.Errorf("InitLimiterCount = %d, want 1", rl.InitLimiterCount())
	}
}

func TestInitMiddleware_IndependentFromGeneralLimit(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	general := rl.GeneralMiddleware()(okHandler())
	initMW := rl.InitMiddleware()(okHandler())

	// 一般枠を使い切る
	for i := 0; i < 3; i++ {
		req := requestAs("")
		req.RemoteAddr = "192.0.2.9:1"
		general.ServeHTTP(httptest.NewRecorder(), req)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/users/init", nil)
	req.RemoteAddr = "192.0.2.9:1"
	w := httptest.NewRecorder()
	initMW.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

// --- クリーンアップのテスト ---

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	cfg := testRateLimiterConfig()
	cfg.CleanupInterval = 50 * time.Millisecond // テスト用に短く

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	rl.GeneralMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestAs("uid-cleanup"))

	if rl.GeneralLimiterCount() == 0 {
		t.Fatal("expected at least one limiter entry")
	}

	// TTLはCleanupIntervalの2倍（100ms）
	deadline := time.Now().Add(2 * time.Second)
	for rl.GeneralLimiterCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if count := rl.GeneralLimiterCount(); count != 0 {
		t.Errorf("expected 0 limiter entries after cleanup, got %d", count)
	}
}

func TestLimiterSet_EvictKeepsRecentEntries(t *testing.T) {
	s := newLimiterSet(1, 1)
	s.getOrCreate("old")
	s.getOrCreate("new")

	s.mu.Lock()
	s.limiters["old"].lastAccess = time.Now().Add(-time.Hour)
	s.mu.Unlock()

	s.evict(time.Now(), time.Minute)

	if s.count() != 1 {
		t.Fatalf("count = %d, want 1", s.count())
	}
	if _, ok := s.limiters["new"]; !ok {
		t.Error("recent entry should remain")
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}

// --- ミドルウェアチェーンとの統合テスト ---

func TestGeneralMiddleware_InChainWithGateAndCORS(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	gate := NewRequestGate(&mockSessionVerifier{}, GateConfig{Public: DefaultPublicPaths()}, nil)
	corsMW := NewCORSMiddleware([]string{"http://localhost:3000"})

	// CORS -> Gate -> RateLimit -> Handler
	handler := corsMW(gate.Middleware(rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claim, _ := ClaimFromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"subject_id": claim.SubjectID})
	}))))

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-session"})
		return req
	}

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newReq())
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newReq())
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("request 3: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	// 未認証リクエストはゲートで拒否され、レート制限のエントリは増えない
	before := rl.GeneralLimiterCount()
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if rl.GeneralLimiterCount() != before {
		t.Errorf("GeneralLimiterCount = %d, want %d", rl.GeneralLimiterCount(), before)
	}
}

// --- デフォルト設定値のテスト ---

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.GeneralRate != 2.0 { // 120/60 = 2
		t.Errorf("GeneralRate = %f, want 2.0", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.InitRate != PerMinute(20) {
		t.Errorf("InitRate = %f, want %f", cfg.InitRate, PerMinute(20))
	}
	if cfg.InitBurst != 20 {
		t.Errorf("InitBurst = %d, want 20", cfg.InitBurst)
	}
}

