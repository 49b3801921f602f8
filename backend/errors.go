package backend

import (
	"errors"
	"net/http"
	"strings"

	"Tunedrop/core/gotrue"
	"Tunedrop/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/minio/minio-go/v7"
)

// Error is the failure value of every backend operation. Status is an HTTP
// status when one is known; routes fall back to their own default otherwise.
type Error struct {
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
	Code    string `json:"code,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	ErrSearchQueryMissing = &Error{Message: "Search query wasn't found!", Status: http.StatusBadRequest}
	ErrMissingID          = &Error{Message: "Id wasn't found!"}
	ErrUnauthenticated    = &Error{Message: "User isn't authenticated!", Status: http.StatusUnauthorized}
	ErrPasswordMismatch   = &Error{Message: "Unverified password!", Status: http.StatusBadRequest}
	ErrPasswordTooShort   = &Error{Message: "Password isn't long enough", Status: http.StatusUnprocessableEntity}
	ErrEmailTaken         = &Error{Message: "The user already exists in the system, please login!", Status: http.StatusBadRequest}
	ErrUsernameTaken      = &Error{Message: "The username is taken already, try a different username!", Status: http.StatusBadRequest}
	ErrSignupIncomplete   = &Error{Message: "The user couldn't be created, please try again!"}
	ErrNoAudio            = &Error{Message: "The track has no audio yet!", Status: http.StatusUnprocessableEntity}
	ErrTrackNotFound      = &Error{Message: "Track wasn't found!", Status: http.StatusNotFound, Code: "not_found", Err: repository.ErrTrackNotFound}
)

// toError normalises an error from a remote collaborator, keeping its
// message, status and code where the collaborator reports them.
func toError(err error) *Error {
	if err == nil {
		return nil
	}

	var be *Error
	if errors.As(err, &be) {
		return be
	}
	if errors.Is(err, repository.ErrTrackNotFound) {
		return ErrTrackNotFound
	}

	var apiErr *gotrue.APIError
	if errors.As(err, &apiErr) {
		return &Error{Message: apiErr.Message, Status: apiErr.Status, Code: apiErr.Code, Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &Error{Message: pgErr.Message, Code: pgErr.Code, Err: err}
	}

	var s3Err minio.ErrorResponse
	if errors.As(err, &s3Err) {
		return &Error{Message: s3Err.Message, Status: s3Err.StatusCode, Code: s3Err.Code, Err: err}
	}

	return &Error{Message: err.Error(), Err: err}
}

// isDuplicateKey reports whether the auth subsystem failed on a unique
// constraint. The message match is fragile; the SQLSTATE check only fires
// when the error chain still carries the driver error.
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "duplicate key value")
}
