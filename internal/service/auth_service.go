package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"rickshaw-auth/internal/apperr"
	"rickshaw-auth/internal/domain"
	"rickshaw-auth/internal/email"
	"rickshaw-auth/internal/repository"
)

// AuthService coordina credenciales, OTP, sesiones y reset de contraseña.
type AuthService struct {
	logger      *zap.Logger
	users       repository.UserRepository
	sessions    repository.RefreshTokenRepository
	policy      repository.SessionPolicy
	codec       TokenCodec
	emailSender email.Sender
	otpLimiter  OTPRateLimiter

	bcryptCost  int
	otpTTL      time.Duration
	resetTTL    time.Duration
	frontendURL string
}

// AuthConfig agrupa los parámetros de negocio del servicio.
type AuthConfig struct {
	BcryptCost    int
	OTPTTL        time.Duration
	ResetTokenTTL time.Duration
	FrontendURL   string
}

func NewAuthService(
	logger *zap.Logger,
	users repository.UserRepository,
	sessions repository.RefreshTokenRepository,
	policy repository.SessionPolicy,
	codec TokenCodec,
	emailSender email.Sender,
	otpLimiter OTPRateLimiter,
	cfg AuthConfig,
) *AuthService {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 10
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 10 * time.Minute
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = 10 * time.Minute
	}
	if policy == nil {
		policy = repository.NewSingleSessionPolicy()
	}
	if otpLimiter == nil {
		otpLimiter = NewOTPRateLimiter(cfg.OTPTTL, 3)
	}
	return &AuthService{
		logger:      logger,
		users:       users,
		sessions:    sessions,
		policy:      policy,
		codec:       codec,
		emailSender: emailSender,
		otpLimiter:  otpLimiter,
		bcryptCost:  cfg.BcryptCost,
		otpTTL:      cfg.OTPTTL,
		resetTTL:    cfg.ResetTokenTTL,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
	}
}

// RegisterInput son los datos del signup. Role es opcional.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// LoginResult agrupa la proyección pública y el par de tokens emitidos.
type LoginResult struct {
	User         domain.PublicUser `json:"user"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
}

// RefreshResult agrupa el nuevo access token con su dueño.
type RefreshResult struct {
	User        domain.PublicUser `json:"user"`
	AccessToken string            `json:"accessToken"`
}

// errMailUnavailable se devuelve cuando el correo es el objetivo de la
// operación y el transporte falla.
func errMailUnavailable() *apperr.Error {
	return apperr.New(apperr.KindInternal, http.StatusServiceUnavailable, "Email delivery unavailable")
}

// Register crea (o re-registra, si existe sin verificar) un usuario y envía
// el OTP de verificación. Un fallo del correo no revierte el registro: queda
// logueado y el usuario puede pedir reenvío.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (domain.PublicUser, error) {
	name := strings.TrimSpace(input.Name)
	emailAddr := strings.TrimSpace(input.Email)
	password := input.Password
	if name == "" || emailAddr == "" || password == "" {
		return domain.PublicUser{}, apperr.Validation("All fields are required")
	}
	role := strings.TrimSpace(input.Role)
	if role == "" {
		role = domain.DefaultRole
	}

	existing, err := s.users.GetByEmail(ctx, emailAddr)
	if err == nil && existing.IsVerified {
		return domain.PublicUser{}, apperr.Conflict("User already exists")
	}
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.PublicUser{}, err
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return domain.PublicUser{}, err
	}

	otp, err := generateOTP()
	if err != nil {
		return domain.PublicUser{}, err
	}
	otpExpiresAt := time.Now().UTC().Add(s.otpTTL)

	user := domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        emailAddr,
		PasswordHash: string(hashBytes),
		Role:         role,
		Otp:          otp,
		OtpExpiresAt: &otpExpiresAt,
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Carrera contra una verificación concurrente: la fila quedó
			// verificada entre el lookup y el upsert.
			return domain.PublicUser{}, apperr.Conflict("User already exists")
		}
		return domain.PublicUser{}, err
	}

	if err := s.emailSender.SendOTPEmail(ctx, emailAddr, otp, otpExpiresAt); err != nil {
		s.logger.Warn("send otp email failed, registration kept",
			zap.Error(err), zap.String("email", emailAddr))
	}

	return created.Public(), nil
}

// VerifyOTP marca el usuario como verificado si el código coincide y no
// expiró. El chequeo de expiración es estrictamente now < expires_at.
func (s *AuthService) VerifyOTP(ctx context.Context, emailAddr, code string) (domain.PublicUser, error) {
	emailAddr = strings.TrimSpace(emailAddr)
	code = strings.TrimSpace(code)
	if emailAddr == "" || code == "" {
		return domain.PublicUser{}, apperr.Validation("OTP is required")
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PublicUser{}, apperr.NotFound("Please register first before verifying OTP")
		}
		return domain.PublicUser{}, err
	}
	if user.IsVerified {
		return domain.PublicUser{}, apperr.Conflict("User is already verified")
	}
	if user.Otp == "" || user.Otp != code {
		return domain.PublicUser{}, apperr.Validation("Invalid OTP")
	}
	if user.OtpExpiresAt == nil || !time.Now().UTC().Before(*user.OtpExpiresAt) {
		return domain.PublicUser{}, apperr.Validation("OTP has expired")
	}

	updated, err := s.users.Verify(ctx, emailAddr)
	if err != nil {
		return domain.PublicUser{}, err
	}
	return updated.Public(), nil
}

// ResendOTP regenera el código para un usuario sin verificar. El código
// anterior queda sobreescrito y deja de ser usable.
func (s *AuthService) ResendOTP(ctx context.Context, emailAddr string) (domain.PublicUser, error) {
	emailAddr = strings.TrimSpace(emailAddr)
	if emailAddr == "" {
		return domain.PublicUser{}, apperr.Validation("Email is required")
	}
	if s.otpLimiter != nil && !s.otpLimiter.Allow(emailAddr) {
		return domain.PublicUser{}, apperr.RateLimited("Too many OTP requests")
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PublicUser{}, apperr.NotFound("User not found")
		}
		return domain.PublicUser{}, err
	}
	if user.IsVerified {
		return domain.PublicUser{}, apperr.Conflict("User is already verified")
	}

	otp, err := generateOTP()
	if err != nil {
		return domain.PublicUser{}, err
	}
	otpExpiresAt := time.Now().UTC().Add(s.otpTTL)
	if err := s.users.UpdateOTP(ctx, emailAddr, otp, otpExpiresAt); err != nil {
		return domain.PublicUser{}, err
	}

	if err := s.emailSender.SendOTPEmail(ctx, emailAddr, otp, otpExpiresAt); err != nil {
		s.logger.Warn("resend otp email failed", zap.Error(err), zap.String("email", emailAddr))
		return domain.PublicUser{}, errMailUnavailable()
	}
	return user.Public(), nil
}

// Login valida credenciales y emite el par access/refresh. El refresh token
// se persiste aplicando la política de sesiones dentro de una transacción.
func (s *AuthService) Login(ctx context.Context, emailAddr, password string) (LoginResult, error) {
	emailAddr = strings.TrimSpace(emailAddr)
	if emailAddr == "" || password == "" {
		return LoginResult{}, apperr.Validation("Email and Password are required")
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LoginResult{}, apperr.NotFound("User not found")
		}
		return LoginResult{}, err
	}
	if !user.IsVerified {
		return LoginResult{}, apperr.Auth("User is not verified, register again")
	}
	if user.PasswordHash == "" {
		return LoginResult{}, apperr.Auth("Invalid Password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, apperr.Auth("Invalid Password")
	}

	accessToken, err := s.codec.SignAccess(user)
	if err != nil {
		return LoginResult{}, err
	}
	refreshToken, expiresAt, err := s.codec.SignRefresh(user.ID)
	if err != nil {
		return LoginResult{}, err
	}

	session := domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     refreshToken,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.sessions.Issue(ctx, session, s.policy); err != nil {
		return LoginResult{}, err
	}

	return LoginResult{
		User:         user.Public(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// RefreshAccessToken emite un access token nuevo contra un refresh token
// vivo. Tokens revocados y nunca emitidos se rechazan de forma idéntica; el
// refresh token no rota en este camino.
func (s *AuthService) RefreshAccessToken(ctx context.Context, refreshToken string) (RefreshResult, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return RefreshResult{}, apperr.Validation("Refresh Token is required")
	}

	stored, err := s.sessions.GetByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RefreshResult{}, apperr.Auth("Invalid Refresh Token")
		}
		return RefreshResult{}, err
	}

	claims, err := s.codec.ParseRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return RefreshResult{}, apperr.Auth("Refresh Token has expired")
		}
		return RefreshResult{}, apperr.Auth("Invalid Refresh Token")
	}
	if stored.UserID != claims.UserID {
		return RefreshResult{}, apperr.Auth("Invalid Refresh Token")
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RefreshResult{}, apperr.NotFound("User not found")
		}
		return RefreshResult{}, err
	}

	accessToken, err := s.codec.SignAccess(user)
	if err != nil {
		return RefreshResult{}, err
	}
	return RefreshResult{User: user.Public(), AccessToken: accessToken}, nil
}

// Logout borra el refresh token por valor. Borrar un token inexistente no es
// un error: la operación es idempotente.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return apperr.Validation("Refresh token is required")
	}
	_, err := s.sessions.DeleteByToken(ctx, refreshToken)
	return err
}

// RequestPasswordReset genera un token de un solo uso y manda el link de
// reset. Un email desconocido devuelve éxito genérico para no permitir
// enumeración; los fallos de infraestructura sí se propagan.
func (s *AuthService) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	emailAddr = strings.TrimSpace(emailAddr)
	if emailAddr == "" {
		return apperr.Validation("Email is required")
	}
	if s.otpLimiter != nil && !s.otpLimiter.Allow(emailAddr) {
		return apperr.RateLimited("Too many reset requests")
	}

	if _, err := s.users.GetByEmail(ctx, emailAddr); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Debug("password reset requested for unknown email",
				zap.String("email", emailAddr))
			return nil
		}
		return err
	}

	plainToken, tokenHash, err := newResetToken()
	if err != nil {
		return err
	}
	expiresAt := time.Now().UTC().Add(s.resetTTL)
	if err := s.users.SetResetToken(ctx, emailAddr, tokenHash, expiresAt); err != nil {
		return err
	}

	resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, plainToken)
	if err := s.emailSender.SendPasswordResetEmail(ctx, emailAddr, resetURL); err != nil {
		s.logger.Warn("send reset email failed", zap.Error(err), zap.String("email", emailAddr))
		return errMailUnavailable()
	}
	return nil
}

// ResetPassword consume el token de reset: recalcula el digest, valida la
// ventana y limpia los campos para que no pueda reusarse.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" || newPassword == "" {
		return apperr.Validation("Token and New Password are required")
	}

	digest := sha256.Sum256([]byte(token))
	tokenHash := hex.EncodeToString(digest[:])

	user, err := s.users.GetByResetTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.Auth("Invalid Token")
		}
		return err
	}
	if user.PasswordResetExpiresAt == nil || !time.Now().UTC().Before(*user.PasswordResetExpiresAt) {
		return apperr.Auth("Token has expired")
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, string(hashBytes)); err != nil {
		return err
	}
	return s.users.ClearResetToken(ctx, user.ID)
}

// generateOTP devuelve un código de 6 dígitos uniforme en 100000–999999.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// newResetToken devuelve el token en claro (va al correo) y su digest sha256
// en hex (va a la base).
func newResetToken() (string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	plain := hex.EncodeToString(raw)
	digest := sha256.Sum256([]byte(plain))
	return plain, hex.EncodeToString(digest[:]), nil
}
