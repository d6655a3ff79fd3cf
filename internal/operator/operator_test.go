package operator

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/audichuang/openclaw-telegram-files/internal/clock"
	"github.com/audichuang/openclaw-telegram-files/internal/logging"
	"github.com/audichuang/openclaw-telegram-files/pkg/protocol"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestAuth(t *testing.T, password string) (*Authenticator, *clock.Manual) {
	t.Helper()
	logging.InitNop()
	clk := clock.NewManual(time.Now().Truncate(time.Second))
	cfg := Config{Secret: testSecret, Clock: clk}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		if err != nil {
			t.Fatal(err)
		}
		cfg.PasswordHash = string(hash)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return a, clk
}

func TestNewRejectsShortSecret(t *testing.T) {
	if _, err := New(Config{Secret: "short"}); err == nil {
		t.Error("expected short secret to be rejected")
	}
	if _, err := New(Config{Secret: testSecret, PasswordHash: "not-bcrypt"}); err == nil {
		t.Error("expected malformed hash to be rejected")
	}
}

func TestIssueAndValidate(t *testing.T) {
	a, clk := newTestAuth(t, "")
	tok, exp, err := a.IssueToken("bot")
	if err != nil {
		t.Fatal(err)
	}
	if !exp.Equal(clk.Now().Add(DefaultTokenTTL)) {
		t.Errorf("unexpected expiry %v", exp)
	}

	claims, err := a.ValidateToken(tok)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "bot" || claims.Issuer != Issuer {
		t.Errorf("unexpected claims %+v", claims)
	}

	clk.Advance(DefaultTokenTTL + time.Second)
	if _, err := a.ValidateToken(tok); err == nil {
		t.Error("expired token should be rejected")
	}
}

func TestValidateRejectsForeignTokens(t *testing.T) {
	a, _ := newTestAuth(t, "")

	other, _ := New(Config{Secret: strings.Repeat("z", 32)})
	tok, _, _ := other.IssueToken("bot")
	if _, err := a.ValidateToken(tok); err == nil {
		t.Error("token signed with another secret should be rejected")
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    Issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := a.ValidateToken(unsigned); err == nil {
		t.Error("alg=none token should be rejected")
	}

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer}})
	s, _ := noExp.SignedString([]byte(testSecret))
	if _, err := a.ValidateToken(s); err == nil {
		t.Error("token without expiry should be rejected")
	}
}

func TestMiddleware(t *testing.T) {
	a, _ := newTestAuth(t, "")
	var seen *Claims
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetClaims(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/operator/pair", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	tok, _, _ := a.IssueToken("bot")
	req := httptest.NewRequest(http.MethodPost, "/api/operator/pair", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
	if seen == nil || seen.Subject != "bot" {
		t.Error("claims should be stored in context")
	}
}

func TestHandleLogin(t *testing.T) {
	a, _ := newTestAuth(t, "hunter2")

	login := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		a.HandleLogin(rec, httptest.NewRequest(http.MethodPost, "/api/operator/token", strings.NewReader(body)))
		return rec
	}

	if rec := login(`{"password":"wrong"}`); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong password, got %d", rec.Code)
	}
	if rec := login(`{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing password, got %d", rec.Code)
	}
	if rec := login(`not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad body, got %d", rec.Code)
	}

	rec := login(`{"password":"hunter2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp protocol.OperatorTokenResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if _, err := a.ValidateToken(resp.Token); err != nil {
		t.Errorf("issued token should validate: %v", err)
	}
}

func TestHandleLoginDisabled(t *testing.T) {
	a, _ := newTestAuth(t, "")
	rec := httptest.NewRecorder()
	a.HandleLogin(rec, httptest.NewRequest(http.MethodPost, "/api/operator/token", strings.NewReader(`{"password":"x"}`)))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 when login is disabled, got %d", rec.Code)
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")) != nil {
		t.Error("hash should verify")
	}
	if _, err := HashPassword(""); err == nil {
		t.Error("empty password should be rejected")
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if BearerToken(req) != "" {
		t.Error("expected empty token")
	}
	req.Header.Set("Authorization", "bearer abc")
	if BearerToken(req) != "abc" {
		t.Error("scheme should be case-insensitive")
	}
	req.Header.Set("Authorization", "Basic abc")
	if BearerToken(req) != "" {
		t.Error("non-bearer scheme should be ignored")
	}
}

func TestPairingLinkAndQR(t *testing.T) {
	if got := PairingLink("https://files.example.com/", "abc123"); got != "https://files.example.com/?pair=abc123" {
		t.Errorf("unexpected link %s", got)
	}
	if PairingLink("", "abc123") != "" {
		t.Error("no base URL means no link")
	}

	dataURL, err := QRDataURL("https://files.example.com/?pair=abc123")
	if err != nil {
		t.Fatal(err)
	}
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(dataURL, prefix) {
		t.Fatalf("unexpected data URL %.40s", dataURL)
	}
	png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, prefix))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("expected PNG payload")
	}
}
