package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/devtoolkit/auth-service/internal/config"
	"github.com/devtoolkit/auth-service/internal/mailer"
	"github.com/devtoolkit/auth-service/internal/repository"
	"github.com/devtoolkit/auth-service/pkg/password"
	"github.com/devtoolkit/auth-service/pkg/token"
)

const MinPasswordLength = 8

// mailTimeout bounds the background delivery attempt so a dead mail relay
// cannot pin goroutines.
const mailTimeout = 15 * time.Second

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// AuthService orchestrates registration, login, email verification and
// password reset over the credential store.
type AuthService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	activity *ActivityLogger
	codec    *token.Codec
	mail     mailer.Dispatcher
	cfg      *config.Config
	log      zerolog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	activity *ActivityLogger,
	codec *token.Codec,
	mail mailer.Dispatcher,
	cfg *config.Config,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		activity: activity,
		codec:    codec,
		mail:     mail,
		cfg:      cfg,
		log:      log,
	}
}

type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Device    *DeviceInfo
}

// Register creates an unverified user with a fresh verification token and the
// default quotas. The verification email is best-effort: a delivery failure
// is logged but never fails the registration.
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*repository.User, error) {
	if !emailPattern.MatchString(req.Email) {
		return nil, ErrInvalidEmail
	}
	if len(req.Password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	// Exact-match lookup; the unique constraint backstops the race between
	// this check and the insert.
	if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	verifyTok, err := newSecureToken()
	if err != nil {
		return nil, err
	}
	verifyExpiry := time.Now().Add(s.cfg.Auth.VerificationTTL)

	user := &repository.User{
		ID:                         uuid.New().String(),
		Email:                      req.Email,
		PasswordHash:               hash,
		FirstName:                  req.FirstName,
		LastName:                   req.LastName,
		Role:                       repository.RoleUser,
		IsVerified:                 false,
		VerificationToken:          &verifyTok,
		VerificationTokenExpiresAt: &verifyExpiry,
		DailyLimit:                 s.cfg.Quota.DefaultDailyLimit,
		MonthlyLimit:               s.cfg.Quota.DefaultMonthlyLimit,
		LastResetDate:              time.Now(),
		IsActive:                   true,
		SignupSource:               "web",
	}
	if req.Device != nil {
		if req.Device.IPAddress != "" {
			ip := req.Device.IPAddress
			user.SignupIP = &ip
		}
		if req.Device.UserAgent != "" {
			ua := req.Device.UserAgent
			user.SignupUserAgent = &ua
		}
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	s.sendMailAsync(user.Email, mailer.KindVerification, map[string]string{
		"name": displayName(user),
		"link": s.cfg.BaseURL + "/verify-email?token=" + verifyTok,
	})

	s.activity.Log(ctx, user.ID, "user_registered", repository.CategoryAuth,
		map[string]string{"email": user.Email}, repository.ResultSuccess)

	s.log.Info().Str("user_id", user.ID).Msg("User registered")
	return user, nil
}

type LoginRequest struct {
	Email    string
	Password string
	Device   *DeviceInfo
}

type LoginResult struct {
	Token   string
	User    *repository.User
	Session *repository.Session
}

// Login authenticates credentials and issues a bearer token. Checks run in a
// fixed order and short-circuit on the first failure: existence, account
// status, lockout, password, verification. A wrong password still persists
// the failed-attempt counter even though the login fails.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		// Same error as a wrong password so the API does not reveal which
		// emails exist.
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !user.IsActive || user.IsSuspended {
		s.activity.Log(ctx, user.ID, "user_login", repository.CategoryAuth,
			map[string]string{"reason": "account suspended"}, repository.ResultFailure)
		return nil, ErrAccountSuspended
	}

	if user.Locked(time.Now()) {
		s.activity.Log(ctx, user.ID, "user_login", repository.CategoryAuth,
			map[string]string{"reason": "account locked"}, repository.ResultFailure)
		return nil, ErrAccountLocked
	}

	match, err := password.Verify(req.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("password verification error: %w", err)
	}
	if !match {
		attempts, recErr := s.users.RecordFailedLogin(ctx, user.ID,
			s.cfg.Auth.LockThreshold, time.Now().Add(s.cfg.Auth.LockDuration))
		if recErr != nil {
			s.log.Error().Err(recErr).Str("user_id", user.ID).Msg("Failed to record login failure")
		}
		if attempts >= s.cfg.Auth.LockThreshold {
			s.log.Warn().Str("user_id", user.ID).Int("attempts", attempts).
				Msg("Account locked after repeated failed logins")
		}

		s.activity.Log(ctx, user.ID, "user_login", repository.CategoryAuth,
			map[string]string{"reason": "wrong password", "attempts": fmt.Sprintf("%d", attempts)},
			repository.ResultFailure)
		return nil, ErrInvalidCredentials
	}

	if !user.IsVerified {
		s.activity.Log(ctx, user.ID, "user_login", repository.CategoryAuth,
			map[string]string{"reason": "email not verified"}, repository.ResultFailure)
		return nil, ErrEmailNotVerified
	}

	if err := s.users.RecordLogin(ctx, user.ID); err != nil {
		return nil, err
	}
	now := time.Now()
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLogin = &now
	user.LastActivity = &now

	bearer, err := s.codec.Issue(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	var session *repository.Session
	if req.Device != nil {
		session = s.createSession(ctx, user.ID, bearer, req.Device)
	}

	s.activity.Log(ctx, user.ID, "user_login", repository.CategoryAuth, nil, repository.ResultSuccess)
	s.log.Info().Str("user_id", user.ID).Msg("Login successful")

	return &LoginResult{Token: bearer, User: user, Session: session}, nil
}

// createSession records the device for the audit trail. Sessions are not the
// authorization mechanism, so a failure here downgrades to a log line rather
// than failing the login.
func (s *AuthService) createSession(ctx context.Context, userID, bearer string, device *DeviceInfo) *repository.Session {
	now := time.Now()
	fp := fingerprint(device.UserAgent)

	session := &repository.Session{
		ID:             uuid.New().String(),
		UserID:         userID,
		TokenHash:      hashToken(bearer),
		DeviceType:     &fp.DeviceType,
		Browser:        &fp.Browser,
		OS:             &fp.OS,
		IsActive:       true,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.cfg.Auth.SessionTTL),
	}
	if device.IPAddress != "" {
		ip := device.IPAddress
		session.IPAddress = &ip
	}
	if device.UserAgent != "" {
		ua := device.UserAgent
		session.UserAgent = &ua
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("Failed to record session")
		return nil
	}

	return session
}

// VerifyEmail consumes a verification token. Consumption is a single
// conditional update, so a token succeeds at most once; replaying it yields
// the same generic failure as an unknown token.
func (s *AuthService) VerifyEmail(ctx context.Context, tok string) (*repository.User, error) {
	user, err := s.users.ConsumeVerificationToken(ctx, tok)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	s.activity.Log(ctx, user.ID, "email_verified", repository.CategoryAuth, nil, repository.ResultSuccess)

	s.sendMailAsync(user.Email, mailer.KindWelcome, map[string]string{
		"name": displayName(user),
	})

	s.log.Info().Str("user_id", user.ID).Msg("Email verified")
	return user, nil
}

// ResendVerification issues a fresh verification token for an unverified
// account, replacing any prior one. Like the reset request it reports success
// regardless of whether the email exists or is already verified.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if user.IsVerified {
		return nil
	}

	verifyTok, err := newSecureToken()
	if err != nil {
		return err
	}

	expiry := time.Now().Add(s.cfg.Auth.VerificationTTL)
	if err := s.users.SetVerificationToken(ctx, user.ID, verifyTok, expiry); err != nil {
		return err
	}

	s.sendMailAsync(user.Email, mailer.KindVerification, map[string]string{
		"name": displayName(user),
		"link": s.cfg.BaseURL + "/verify-email?token=" + verifyTok,
	})

	s.activity.Log(ctx, user.ID, "verification_resent", repository.CategoryAuth, nil, repository.ResultSuccess)
	return nil
}

// RequestPasswordReset reports success whether or not the email exists, to
// avoid account enumeration. When the user exists a new single-use reset
// token overwrites any prior one.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	resetTok, err := newSecureToken()
	if err != nil {
		return err
	}

	expiry := time.Now().Add(s.cfg.Auth.ResetTTL)
	if err := s.users.SetResetToken(ctx, user.ID, resetTok, expiry); err != nil {
		return err
	}

	s.sendMailAsync(user.Email, mailer.KindPasswordReset, map[string]string{
		"name": displayName(user),
		"link": s.cfg.BaseURL + "/reset-password?token=" + resetTok,
	})

	s.activity.Log(ctx, user.ID, "password_reset_requested", repository.CategoryAuth, nil, repository.ResultSuccess)
	return nil
}

// ResetPassword consumes an unexpired reset token and installs the new
// password.
func (s *AuthService) ResetPassword(ctx context.Context, tok, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}

	hash, err := password.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.users.ConsumeResetToken(ctx, tok, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return err
	}

	s.activity.Log(ctx, user.ID, "password_reset", repository.CategoryAuth, nil, repository.ResultSuccess)
	s.log.Info().Str("user_id", user.ID).Msg("Password reset")
	return nil
}

// Logout deactivates a device session. The bearer token itself stays valid
// until expiry; sessions are audit state.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.sessions.Deactivate(ctx, session.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	s.activity.Log(ctx, session.UserID, "user_logout", repository.CategoryAuth, nil, repository.ResultSuccess)
	return nil
}

func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]*repository.Session, error) {
	return s.sessions.ListByUser(ctx, userID)
}

func (s *AuthService) GetUserByID(ctx context.Context, id string) (*repository.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// UpdateProfile applies the enumerated profile patch. Sensitive fields have
// no corresponding patch field, so they cannot be reached from here.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, patch repository.ProfilePatch) (*repository.User, error) {
	if err := s.users.UpdateProfile(ctx, userID, patch); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	s.activity.Log(ctx, userID, "profile_updated", repository.CategoryProfile, nil, repository.ResultSuccess)
	return s.GetUserByID(ctx, userID)
}

// PurgeExpiredSessions removes sessions past their expiry.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx)
}

func (s *AuthService) sendMailAsync(to string, kind mailer.Kind, data map[string]string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
		defer cancel()

		if err := s.mail.Send(ctx, to, kind, data); err != nil {
			s.log.Error().Err(err).Str("kind", string(kind)).Msg("Mail delivery failed")
		}
	}()
}

func displayName(u *repository.User) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Email
}

func newSecureToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}
