// Package account implements registration, login, forgot-password and
// password reset on top of a credential store, a password hasher, a token
// manager and a mail sender.
package account

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/oops"

	"github.com/hongminglow/passgate/internal/auth"
	"github.com/hongminglow/passgate/internal/logging"
	"github.com/hongminglow/passgate/internal/mail"
	"github.com/hongminglow/passgate/internal/models"
	"github.com/hongminglow/passgate/internal/storage"
)

// TokenIssuer signs and verifies bearer tokens carrying a user id.
type TokenIssuer interface {
	Generate(userID string, purpose auth.Purpose) (string, error)
	Parse(token string) (*auth.Claims, error)
}

// EventRecorder counts flow outcomes.
type EventRecorder interface {
	RecordAuthEvent(event, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordAuthEvent(string, string) {}

// Deps are the collaborators of a Service. Events and Logger are optional.
type Deps struct {
	Store    storage.UserStore
	Hasher   auth.PasswordHasher
	Tokens   TokenIssuer
	Mailer   mail.Sender
	Events   EventRecorder
	Logger   *slog.Logger
	LinkBase string
}

// Service runs the account flows. It holds no per-request state.
type Service struct {
	store    storage.UserStore
	hasher   auth.PasswordHasher
	tokens   TokenIssuer
	mailer   mail.Sender
	events   EventRecorder
	logger   *slog.Logger
	linkBase string
}

// New validates deps and builds a Service.
func New(deps Deps) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, oops.Code("ACCOUNT_DEPS_INVALID").Errorf("user store is required")
	case deps.Hasher == nil:
		return nil, oops.Code("ACCOUNT_DEPS_INVALID").Errorf("password hasher is required")
	case deps.Tokens == nil:
		return nil, oops.Code("ACCOUNT_DEPS_INVALID").Errorf("token issuer is required")
	case deps.Mailer == nil:
		return nil, oops.Code("ACCOUNT_DEPS_INVALID").Errorf("mail sender is required")
	case strings.TrimSpace(deps.LinkBase) == "":
		return nil, oops.Code("ACCOUNT_DEPS_INVALID").Errorf("reset link base is required")
	}

	s := &Service{
		store:    deps.Store,
		hasher:   deps.Hasher,
		tokens:   deps.Tokens,
		mailer:   deps.Mailer,
		events:   deps.Events,
		logger:   deps.Logger,
		linkBase: strings.TrimRight(strings.TrimSpace(deps.LinkBase), "/"),
	}
	if s.events == nil {
		s.events = noopRecorder{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Register creates a user after checking that neither the username nor the
// email is taken. The store's unique constraint remains the final guard.
// Usernames are stored and matched exactly as given; a blank one is missing.
func (s *Service) Register(ctx context.Context, username, email, password string) error {
	const event = "register"
	email = strings.TrimSpace(email)
	if strings.TrimSpace(username) == "" || email == "" || password == "" {
		return s.fail(ctx, event, KindValidation, MsgRegisterFieldsRequired, nil)
	}

	_, err := s.store.FindByUsernameOrEmail(ctx, username, email)
	switch {
	case err == nil:
		return s.fail(ctx, event, KindConflict, MsgUserExists, nil)
	case !errors.Is(err, storage.ErrNotFound):
		return s.fail(ctx, event, KindInternal, MsgRegisterFailed, err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return s.fail(ctx, event, KindValidation, MsgPasswordTooLong, nil)
		}
		return s.fail(ctx, event, KindInternal, MsgRegisterFailed, err)
	}

	created, err := s.store.CreateUser(ctx, models.User{Username: username, Email: email, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return s.fail(ctx, event, KindConflict, MsgUserExists, nil)
		}
		return s.fail(ctx, event, KindInternal, MsgRegisterFailed, err)
	}

	s.events.RecordAuthEvent(event, "success")
	s.logger.InfoContext(ctx, "user registered", "user_id", created.ID, "username", created.Username)
	return nil
}

// Login checks the credentials and returns a session token. Unknown
// usernames and wrong passwords produce the same error.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	const event = "login"
	if strings.TrimSpace(username) == "" || password == "" {
		return "", s.fail(ctx, event, KindValidation, MsgLoginFieldsRequired, nil)
	}

	user, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", s.fail(ctx, event, KindInvalidCredentials, MsgInvalidCredentials, nil)
		}
		return "", s.fail(ctx, event, KindInternal, MsgLoginFailed, err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return "", s.fail(ctx, event, KindInternal, MsgLoginFailed, err)
	}
	if !ok {
		return "", s.fail(ctx, event, KindInvalidCredentials, MsgInvalidCredentials, nil)
	}

	token, err := s.tokens.Generate(user.ID, auth.PurposeSession)
	if err != nil {
		return "", s.fail(ctx, event, KindInternal, MsgLoginFailed, err)
	}

	s.events.RecordAuthEvent(event, "success")
	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID)
	return token, nil
}

// ForgotPassword mints a reset token for the account registered under email
// and mails a reset link to it. Unlike Login it reports unknown emails.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	const event = "forgot_password"
	email = strings.TrimSpace(email)
	if email == "" {
		return s.fail(ctx, event, KindValidation, MsgEmailRequired, nil)
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s.fail(ctx, event, KindEmailNotFound, MsgEmailNotFound, nil)
		}
		return s.fail(ctx, event, KindInternal, MsgForgotFailed, err)
	}

	token, err := s.tokens.Generate(user.ID, auth.PurposeReset)
	if err != nil {
		return s.fail(ctx, event, KindInternal, MsgForgotFailed, err)
	}

	msg := mail.Message{
		To:      user.Email,
		Subject: "Password Reset",
		Body:    "Click the link to reset your password: " + s.ResetLink(token),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return s.fail(ctx, event, KindInternal, MsgForgotFailed, err)
	}

	s.events.RecordAuthEvent(event, "success")
	s.logger.InfoContext(ctx, "password reset link sent", "user_id", user.ID)
	return nil
}

// ResetPassword verifies token and replaces the user's password hash. The
// token is not consumed: it keeps working until it expires.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	const event = "reset_password"
	if newPassword == "" {
		return s.fail(ctx, event, KindValidation, MsgNewPasswordRequired, nil)
	}

	claims, err := s.tokens.Parse(token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTokenExpired):
			return s.fail(ctx, event, KindTokenExpired, MsgTokenExpired, nil)
		case errors.Is(err, auth.ErrTokenInvalid):
			return s.fail(ctx, event, KindTokenInvalid, MsgTokenInvalid, nil)
		default:
			return s.fail(ctx, event, KindInternal, MsgResetFailed, err)
		}
	}

	user, err := s.store.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s.fail(ctx, event, KindUserNotFound, MsgInvalidOrExpiredToken, nil)
		}
		return s.fail(ctx, event, KindInternal, MsgResetFailed, err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return s.fail(ctx, event, KindValidation, MsgPasswordTooLong, nil)
		}
		return s.fail(ctx, event, KindInternal, MsgResetFailed, err)
	}

	if err := s.store.UpdatePassword(ctx, user.ID, hash); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s.fail(ctx, event, KindUserNotFound, MsgInvalidOrExpiredToken, nil)
		}
		return s.fail(ctx, event, KindInternal, MsgResetFailed, err)
	}

	s.events.RecordAuthEvent(event, "success")
	s.logger.InfoContext(ctx, "password reset", "user_id", user.ID)
	return nil
}

// ResetLink builds the URL mailed to the user for token.
func (s *Service) ResetLink(token string) string {
	return s.linkBase + "/reset-password/" + token
}

func (s *Service) fail(ctx context.Context, event string, kind Kind, msg string, cause error) *Error {
	s.events.RecordAuthEvent(event, kind.String())
	if kind == KindInternal {
		logging.LogError(ctx, s.logger, event+" failed", cause, "event", event)
	} else {
		s.logger.DebugContext(ctx, event+" rejected", "event", event, "reason", kind.String())
	}
	return &Error{Kind: kind, Message: msg, Err: cause}
}
