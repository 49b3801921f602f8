package backend

import (
	"context"
	"errors"
	"net/http"
	"unicode/utf8"

	"Tunedrop/core/gotrue"
	"Tunedrop/logger"
	"Tunedrop/model"
	"Tunedrop/repository"
	"Tunedrop/schema"
)

const minPasswordLength = 8

// CreateUser registers an auth user and its profile. The email and username
// pre-checks are advisory; the profiles table's unique indexes are the real
// constraint. If the profile insert fails the auth user is deleted again.
func (b *Backend) CreateUser(ctx context.Context, details schema.UserCreate) error {
	password := deref(details.Password)
	if password != deref(details.ConfirmPassword) {
		return ErrPasswordMismatch
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return ErrPasswordTooShort
	}
	username := deref(details.Username)

	taken, err := b.profiles.ExistsByEmail(ctx, details.Email)
	if err != nil {
		return toError(err)
	}
	if taken {
		return ErrEmailTaken
	}

	taken, err = b.profiles.ExistsByUsername(ctx, username)
	if err != nil {
		return toError(err)
	}
	if taken {
		return ErrUsernameTaken
	}

	user, err := b.auth.SignUp(ctx, details.Email, password)
	if err != nil {
		if !isDuplicateKey(err) {
			logger.Warn("[Signup] auth signup failed", logger.String("email", details.Email), logger.ErrorField(err))
			return toError(err)
		}
		logger.Warn("[Signup] tolerating duplicate key from auth signup", logger.String("email", details.Email), logger.ErrorField(err))
	}
	if user == nil || user.ID == "" {
		return ErrSignupIncomplete
	}
	// an existing email comes back as a user without identities
	if user.Identities != nil && len(user.Identities) == 0 {
		return ErrEmailTaken
	}

	profile := &model.Profile{ID: user.ID, Email: details.Email, Username: username}
	if err := b.profiles.Create(ctx, profile); err != nil {
		logger.Error("[Signup] profile insert failed, removing auth user",
			logger.String("userId", user.ID),
			logger.ErrorField(err))
		if delErr := b.auth.DeleteUser(ctx, user.ID); delErr != nil {
			logger.Error("[Signup] orphaned auth user", logger.String("userId", user.ID), logger.ErrorField(delErr))
		}
		if errors.Is(err, repository.ErrDuplicateUser) {
			return ErrUsernameTaken
		}
		return &Error{Message: "The user profile couldn't be created!", Err: err}
	}

	logger.Info("[Signup] user created", logger.String("userId", user.ID), logger.String("username", username))
	return nil
}

// ValidateOTP verifies an emailed one-time code and returns the session.
func (b *Backend) ValidateOTP(ctx context.Context, details schema.UserOTPVerify) (*model.Session, error) {
	session, err := b.auth.VerifyEmailOTP(ctx, details.Email, details.OTP)
	if err != nil {
		return nil, toError(err)
	}
	return b.withUsername(ctx, session), nil
}

// SignInToUser exchanges email and password for a session.
func (b *Backend) SignInToUser(ctx context.Context, details schema.UserSignIn) (*model.Session, error) {
	session, err := b.auth.SignInWithPassword(ctx, details.Email, deref(details.Password))
	if err != nil {
		return nil, toError(err)
	}
	return b.withUsername(ctx, session), nil
}

// GetAccessTokenFromRefresh exchanges a refresh token for a new session.
func (b *Backend) GetAccessTokenFromRefresh(ctx context.Context, details schema.UserRefreshToken) (*model.Session, error) {
	session, err := b.auth.RefreshSession(ctx, deref(details.RefreshToken))
	if err != nil {
		return nil, toError(err)
	}
	return b.withUsername(ctx, session), nil
}

// withUsername copies the profile username onto the session. The auth
// subsystem knows nothing about profiles.
func (b *Backend) withUsername(ctx context.Context, session *model.Session) *model.Session {
	if session.User == nil {
		return session
	}
	username, err := b.profiles.UsernameByID(ctx, session.User.ID)
	if err != nil {
		logger.Warn("[Session] username lookup failed", logger.String("userId", session.User.ID), logger.ErrorField(err))
		return session
	}
	session.Username = username
	return session
}

// Authenticate resolves a bearer token to its user. A token the auth
// subsystem rejects is a 401; anything else is a 500.
func (b *Backend) Authenticate(ctx context.Context, accessToken string) (*model.AuthUser, error) {
	user, err := b.auth.GetUser(ctx, accessToken)
	if err != nil {
		var apiErr *gotrue.APIError
		if errors.As(err, &apiErr) {
			return nil, &Error{Message: apiErr.Message, Status: http.StatusUnauthorized, Code: apiErr.Code, Err: err}
		}
		return nil, &Error{Message: err.Error(), Status: http.StatusInternalServerError, Err: err}
	}
	if user == nil || user.ID == "" {
		return nil, &Error{Message: "User wasn't found for this token!", Status: http.StatusUnauthorized}
	}
	return user, nil
}
