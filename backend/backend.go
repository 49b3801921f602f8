// Package backend adapts the auth subsystem, the relational tables and the
// object store into the typed operations served by the HTTP routes.
package backend

import (
	"context"
	"strings"
	"time"
	"unicode"

	"Tunedrop/model"
	"Tunedrop/repository"
)

// AudioURLExpiry is the lifetime of a signed audio URL.
const AudioURLExpiry = 3600 * time.Second

// AuthProvider is the managed auth subsystem.
type AuthProvider interface {
	SignUp(ctx context.Context, email, password string) (*model.AuthUser, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	VerifyEmailOTP(ctx context.Context, email, token string) (*model.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error)
	GetUser(ctx context.Context, accessToken string) (*model.AuthUser, error)
	DeleteUser(ctx context.Context, id string) error
}

// ObjectStore holds uploaded audio and cover files.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, name string, data []byte, contentType string) (string, error)
	SignedURL(ctx context.Context, bucket, name string, expiry time.Duration) (string, error)
	Remove(ctx context.Context, bucket, name string) error
}

// DurationReader extracts the duration in seconds from raw audio bytes.
type DurationReader interface {
	Duration(ctx context.Context, data []byte) (float64, error)
}

// Options configures a Backend.
type Options struct {
	AudioBucket string
	CoverBucket string
	// RequireMediaOnFinalize refuses to expose a track without audio.
	RequireMediaOnFinalize bool
	// NewObjectName names uploaded objects. Defaults to a random uuid plus
	// the original extension.
	NewObjectName func(originalName string) string
}

// Backend is shared by all handlers; it holds no per-request state.
type Backend struct {
	auth      AuthProvider
	tracks    repository.TrackRepository
	profiles  repository.ProfileRepository
	objects   ObjectStore
	durations DurationReader
	opts      Options
}

// New creates a Backend from its collaborators.
func New(
	auth AuthProvider,
	tracks repository.TrackRepository,
	profiles repository.ProfileRepository,
	objects ObjectStore,
	durations DurationReader,
	opts Options,
) *Backend {
	if opts.NewObjectName == nil {
		opts.NewObjectName = defaultObjectName
	}
	return &Backend{
		auth:      auth,
		tracks:    tracks,
		profiles:  profiles,
		objects:   objects,
		durations: durations,
		opts:      opts,
	}
}

func isSearchSeparator(r rune) bool {
	return r == ',' || unicode.IsSpace(r)
}

// CreateSearchString turns free text into an OR tsquery: every run of
// whitespace or commas becomes " | ". Leading and trailing separators are
// dropped.
func CreateSearchString(query string) string {
	return strings.Join(strings.FieldsFunc(query, isSearchSeparator), " | ")
}

var tsqueryEscaper = strings.NewReplacer(`'`, `''`, `\`, `\\`)

// QuoteSearchString quotes every term of a search string built by
// CreateSearchString, so "don't | &" becomes "'don''t' | '&'". Terms never
// contain spaces, which keeps the " | " split exact.
func QuoteSearchString(search string) string {
	if search == "" {
		return ""
	}
	terms := strings.Split(search, " | ")
	for i, term := range terms {
		terms[i] = "'" + tsqueryEscaper.Replace(term) + "'"
	}
	return strings.Join(terms, " | ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
