package http

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
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"rickshaw-auth/internal/domain"
	"rickshaw-auth/internal/repository"
	"rickshaw-auth/internal/service"
)

type mockUserRepo struct {
	usersByID    map[string]domain.User
	usersByEmail map[string]string
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:    make(map[string]domain.User),
		usersByEmail: make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) (domain.User, error) {
	if id, ok := m.usersByEmail[user.Email]; ok {
		existing := m.usersByID[id]
		if existing.IsVerified {
			return domain.User{}, pgx.ErrNoRows
		}
		existing.Name = user.Name
		existing.PasswordHash = user.PasswordHash
		existing.Role = user.Role
		existing.Otp = user.Otp
		existing.OtpExpiresAt = user.OtpExpiresAt
		m.usersByID[id] = existing
		return existing, nil
	}
	user.CreatedAt = time.Now().UTC()
	m.usersByID[user.ID] = user
	m.usersByEmail[user.Email] = user.ID
	return user, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	id, ok := m.usersByEmail[email]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.usersByID[id], nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) Verify(_ context.Context, email string) (domain.User, error) {
	id, ok := m.usersByEmail[email]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	user := m.usersByID[id]
	user.IsVerified = true
	user.Otp = ""
	user.OtpExpiresAt = nil
	m.usersByID[id] = user
	return user, nil
}

func (m *mockUserRepo) UpdateOTP(_ context.Context, email, otp string, expiresAt time.Time) error {
	id, ok := m.usersByEmail[email]
	if !ok {
		return pgx.ErrNoRows
	}
	user := m.usersByID[id]
	user.Otp = otp
	user.OtpExpiresAt = &expiresAt
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) SetResetToken(_ context.Context, email, tokenHash string, expiresAt time.Time) error {
	id, ok := m.usersByEmail[email]
	if !ok {
		return pgx.ErrNoRows
	}
	user := m.usersByID[id]
	user.PasswordResetTokenHash = tokenHash
	user.PasswordResetExpiresAt = &expiresAt
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) GetByResetTokenHash(_ context.Context, tokenHash string) (domain.User, error) {
	for _, user := range m.usersByID {
		if user.PasswordResetTokenHash != "" && user.PasswordResetTokenHash == tokenHash {
			return user, nil
		}
	}
	return domain.User{}, pgx.ErrNoRows
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.PasswordHash = passwordHash
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) ClearResetToken(_ context.Context, id string) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.PasswordResetTokenHash = ""
	user.PasswordResetExpiresAt = nil
	m.usersByID[id] = user
	return nil
}

type mockSessionRepo struct {
	byToken map[string]domain.RefreshToken
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{byToken: make(map[string]domain.RefreshToken)}
}

func (m *mockSessionRepo) Issue(ctx context.Context, token domain.RefreshToken, policy repository.SessionPolicy) error {
	if policy != nil {
		if err := policy.Trim(ctx, m, token.UserID); err != nil {
			return err
		}
	}
	m.byToken[token.Token] = token
	return nil
}

func (m *mockSessionRepo) GetByToken(_ context.Context, token string) (domain.RefreshToken, error) {
	t, ok := m.byToken[token]
	if !ok {
		return domain.RefreshToken{}, pgx.ErrNoRows
	}
	return t, nil
}

func (m *mockSessionRepo) DeleteByToken(_ context.Context, token string) (int64, error) {
	if _, ok := m.byToken[token]; !ok {
		return 0, nil
	}
	delete(m.byToken, token)
	return 1, nil
}

func (m *mockSessionRepo) DeleteByUser(_ context.Context, userID string) (int64, error) {
	var n int64
	for tok, t := range m.byToken {
		if t.UserID == userID {
			delete(m.byToken, tok)
			n++
		}
	}
	return n, nil
}

func (m *mockSessionRepo) DeleteOldest(_ context.Context, userID string, keep int) (int64, error) {
	// Suficiente para estas pruebas: la política single usa DeleteByUser.
	return 0, nil
}

type mockEmailSender struct {
	lastTo       string
	lastCode     string
	lastResetURL string
	otpErr       error
	resetErr     error
}

func (m *mockEmailSender) SendOTPEmail(_ context.Context, toEmail string, code string, _ time.Time) error {
	m.lastTo = toEmail
	m.lastCode = code
	return m.otpErr
}

func (m *mockEmailSender) SendPasswordResetEmail(_ context.Context, toEmail string, resetURL string) error {
	m.lastTo = toEmail
	m.lastResetURL = resetURL
	return m.resetErr
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setupRouter(repo *mockUserRepo, sessions *mockSessionRepo, sender *mockEmailSender) (*gin.Engine, service.TokenCodec) {
	gin.SetMode(gin.TestMode)
	codec := service.NewHS256Codec("access-secret", "refresh-secret", time.Minute, time.Hour)
	svc := service.NewAuthService(zap.NewNop(), repo, sessions, repository.NewSingleSessionPolicy(), codec, sender, nil, service.AuthConfig{
		FrontendURL: "http://localhost:5173",
	})
	h := NewAuthHandler(zap.NewNop(), svc)
	return NewRouter(zap.NewNop(), h, codec), codec
}

func performRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	return env
}

func TestAuthFlow_EndToEnd(t *testing.T) {
	repo := newMockUserRepo()
	sessions := newMockSessionRepo()
	sender := &mockEmailSender{}
	r, _ := setupRouter(repo, sessions, sender)

	// Signup.
	rec := performRequest(r, http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"name": "Ann", "email": "ann@x.com", "password": "pw1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	stored, err := repo.GetByEmail(context.Background(), "ann@x.com")
	if err != nil || stored.IsVerified {
		t.Fatalf("signup must create an unverified user, got %+v, %v", stored, err)
	}

	// OTP equivocado.
	wrong := "000000"
	if wrong == sender.lastCode {
		wrong = "000001"
	}
	rec = performRequest(r, http.MethodPost, "/api/v1/auth/verify-otp", map[string]string{
		"email": "ann@x.com", "otp": wrong,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("wrong otp: expected 400, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Message != "Invalid OTP" || env.Success {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	// OTP correcto antes de expirar.
	rec = performRequest(r, http.MethodPost, "/api/v1/auth/verify-otp", map[string]string{
		"email": "ann@x.com", "otp": sender.lastCode,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify otp: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	stored, _ = repo.GetByEmail(context.Background(), "ann@x.com")
	if !stored.IsVerified {
		t.Fatalf("user must be verified after otp check")
	}

	// Login.
	rec = performRequest(r, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "ann@x.com", "password": "pw1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), stored.PasswordHash) {
		t.Fatalf("login response must never include the password hash")
	}
	var loginData struct {
		User         domain.PublicUser `json:"user"`
		AccessToken  string            `json:"accessToken"`
		RefreshToken string            `json:"refreshToken"`
	}
	env := decodeEnvelope(t, rec)
	if err := json.Unmarshal(env.Data, &loginData); err != nil {
		t.Fatalf("decode login data: %v", err)
	}
	if loginData.AccessToken == "" || loginData.RefreshToken == "" {
		t.Fatalf("login must return both tokens")
	}

	// Contraseña incorrecta.
	rec = performRequest(r, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "ann@x.com", "password": "nope",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("wrong password: expected 400, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Message != "Invalid Password" {
		t.Fatalf("unexpected message: %q", env.Message)
	}

	// Refresh.
	rec = performRequest(r, http.MethodPost, "/api/v1/auth/refresh-token", map[string]string{
		"refreshToken": loginData.RefreshToken,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	// Ruta protegida con el access token.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/protected", nil)
	req.Header.Set("Authorization", "Bearer "+loginData.AccessToken)
	recorder := httptest.NewRecorder()
	r.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("protected: expected 200, got %d", recorder.Code)
	}

	// Logout dos veces: ambas exitosas.
	for i := 0; i < 2; i++ {
		rec = performRequest(r, http.MethodPost, "/api/v1/auth/logout", map[string]string{
			"refreshToken": loginData.RefreshToken,
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("logout attempt %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	// Refresh con token revocado.
	rec = performRequest(r, http.MethodPost, "/api/v1/auth/refresh-token", map[string]string{
		"refreshToken": loginData.RefreshToken,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("revoked refresh: expected 400, got %d", rec.Code)
	}
}

func TestSignup_DuplicateVerifiedUser(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	r, _ := setupRouter(repo, newMockSessionRepo(), sender)

	rec := performRequest(r, http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"name": "Ann", "email": "ann@x.com", "password": "pw1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d", rec.Code)
	}
	rec = performRequest(r, http.MethodPost, "/api/v1/auth/verify-otp", map[string]string{
		"email": "ann@x.com", "otp": sender.lastCode,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", rec.Code)
	}

	rec = performRequest(r, http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"name": "Ann", "email": "ann@x.com", "password": "pw2",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate verified signup: expected 400, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Message != "User already exists" {
		t.Fatalf("unexpected message: %q", env.Message)
	}
}

func TestSignup_MissingFields(t *testing.T) {
	r, _ := setupRouter(newMockUserRepo(), newMockSessionRepo(), &mockEmailSender{})

	rec := performRequest(r, http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"name": "Ann", "email": "ann@x.com",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Message != "All fields are required" {
		t.Fatalf("unexpected message: %q", env.Message)
	}
}

func TestForgottenPassword_UnknownEmailIsMasked(t *testing.T) {
	r, _ := setupRouter(newMockUserRepo(), newMockSessionRepo(), &mockEmailSender{})

	rec := performRequest(r, http.MethodPost, "/api/v1/auth/forgotten-password", map[string]string{
		"email": "ghost@x.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown email must get generic 200, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); !env.Success {
		t.Fatalf("expected success envelope, got %+v", env)
	}
}

func TestResetPassword_FullFlow(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	r, _ := setupRouter(repo, newMockSessionRepo(), sender)

	rec := performRequest(r, http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"name": "Ann", "email": "ann@x.com", "password": "pw1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d", rec.Code)
	}
	rec = performRequest(r, http.MethodPost, "/api/v1/auth/verify-otp", map[string]string{
		"email": "ann@x.com", "otp": sender.lastCode,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", rec.Code)
	}

	rec = performRequest(r, http.MethodPost, "/api/v1/auth/forgotten-password", map[string]string{
		"email": "ann@x.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("forgotten-password: expected 200, got %d", rec.Code)
	}
	token := sender.lastResetURL[strings.LastIndex(sender.lastResetURL, "=")+1:]

	rec = performRequest(r, http.MethodPost, "/api/v1/auth/reset-password", map[string]string{
		"token": token, "newPassword": "pw2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reset-password: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = performRequest(r, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "ann@x.com", "password": "pw2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login with new password: expected 200, got %d", rec.Code)
	}

	// El token quedó consumido.
	rec = performRequest(r, http.MethodPost, "/api/v1/auth/reset-password", map[string]string{
		"token": token, "newPassword": "pw3",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("reused reset token: expected 400, got %d", rec.Code)
	}
}

func TestHealthcheck(t *testing.T) {
	r, _ := setupRouter(newMockUserRepo(), newMockSessionRepo(), &mockEmailSender{})
	rec := performRequest(r, http.MethodGet, "/healthcheck", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestInvalidJSONBody(t *testing.T) {
	r, _ := setupRouter(newMockUserRepo(), newMockSessionRepo(), &mockEmailSender{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader([]byte("{")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: expected 400, got %d", rec.Code)
	}
}
