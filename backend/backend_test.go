package backend

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"Tunedrop/core/gotrue"
	"Tunedrop/model"
	"Tunedrop/schema"
	"Tunedrop/testsupport"
)

type testEnv struct {
	backend   *Backend
	auth      *testsupport.Auth
	tracks    *testsupport.Tracks
	profiles  *testsupport.Profiles
	objects   *testsupport.Objects
	durations *testsupport.Durations
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	if opts.AudioBucket == "" {
		opts.AudioBucket = "track-audios"
	}
	if opts.CoverBucket == "" {
		opts.CoverBucket = "track-cover-images"
	}
	env := &testEnv{
		auth:      testsupport.NewAuth(),
		tracks:    testsupport.NewTracks(),
		profiles:  testsupport.NewProfiles(),
		objects:   testsupport.NewObjects(),
		durations: &testsupport.Durations{Seconds: 180.5},
	}
	env.backend = New(env.auth, env.tracks, env.profiles, env.objects, env.durations, opts)
	return env
}

func strp(s string) *string { return &s }

func signup(email, password, confirm, username string) schema.UserCreate {
	return schema.UserCreate{
		Email:           email,
		Password:        strp(password),
		ConfirmPassword: strp(confirm),
		Username:        strp(username),
	}
}

// signUpAlice registers alice and returns her auth user.
func (e *testEnv) signUpAlice(t *testing.T) *model.AuthUser {
	t.Helper()
	ctx := context.Background()
	if err := e.backend.CreateUser(ctx, signup("a@b.com", "longpass1", "longpass1", "alice")); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	token, ok := e.auth.IssueToken("a@b.com")
	if !ok {
		t.Fatal("alice was not created in auth")
	}
	user, err := e.backend.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	return user
}

func assertStatus(t *testing.T, err error, status int) *Error {
	t.Helper()
	var be *Error
	if !errors.As(err, &be) {
		t.Fatalf("expected *Error, got %T (%v)", err, err)
	}
	if be.Status != status {
		t.Fatalf("expected status %d, got %d (%s)", status, be.Status, be.Message)
	}
	return be
}

func TestCreateSearchString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"foo  bar,baz", "foo | bar | baz"},
		{"single", "single"},
		{"  lead and trail  ", "lead | and | trail"},
		{"tabs\tand\nnewlines", "tabs | and | newlines"},
		{"a, b ,c", "a | b | c"},
		{",, ,", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CreateSearchString(tt.in); got != tt.want {
			t.Errorf("CreateSearchString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQuoteSearchString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"foo | bar | baz", "'foo' | 'bar' | 'baz'"},
		{"don't", "'don''t'"},
		{"rock | & | roll", "'rock' | '&' | 'roll'"},
		{`back\slash`, `'back\\slash'`},
		{"a|b", "'a|b'"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := QuoteSearchString(tt.in); got != tt.want {
			t.Errorf("QuoteSearchString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSearchSongsQuotesTerms(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	alice := env.signUpAlice(t)

	id, _ := env.backend.UploadSongDetails(ctx, alice, schema.SongTempUpload{Name: strp("don't stop")})
	if _, err := env.backend.FinalizeTrackUpload(ctx, alice, id); err != nil {
		t.Fatalf("FinalizeTrackUpload error: %v", err)
	}

	songs, err := env.backend.SearchSongs(ctx, "don't rock & roll", nil)
	if err != nil {
		t.Fatalf("SearchSongs error: %v", err)
	}
	if want := "'don''t' | 'rock' | '&' | 'roll'"; env.tracks.LastQuery != want {
		t.Fatalf("expected tsquery %q, got %q", want, env.tracks.LastQuery)
	}
	if len(songs) != 1 || songs[0].ID != id {
		t.Fatalf("expected %s to match, got %+v", id, songs)
	}
}

func TestSearchSongs(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	alice := env.signUpAlice(t)

	for _, q := range []string{"", "  ", " , "} {
		if _, err := env.backend.SearchSongs(ctx, q, nil); !errors.Is(err, ErrSearchQueryMissing) {
			t.Fatalf("query %q: expected ErrSearchQueryMissing, got %v", q, err)
		}
	}

	exposedID, _ := env.backend.UploadSongDetails(ctx, alice, schema.SongTempUpload{Name: strp("Sunrise"), Tags: []string{"pop", "chill"}})
	draftID, _ := env.backend.UploadSongDetails(ctx, alice, schema.SongTempUpload{Name: strp("Sunset"), Tags: []string{"pop"}})
	if _, err := env.backend.FinalizeTrackUpload(ctx, alice, exposedID); err != nil {
		t.Fatalf("FinalizeTrackUpload error: %v", err)
	}

	songs, err := env.backend.SearchSongs(ctx, "alice", nil)
	if err != nil {
		t.Fatalf("SearchSongs error: %v", err)
	}
	if len(songs) != 1 || songs[0].ID != exposedID {
		t.Fatalf("expected only %s, got %+v", exposedID, songs)
	}
	for _, s := range songs {
		if s.ID == draftID {
			t.Fatal("draft track leaked into search")
		}
	}

	songs, _ = env.backend.SearchSongs(ctx, "nothing, sunrise", []string{"pop", "chill"})
	if len(songs) != 1 {
		t.Fatalf("expected tag containment match, got %+v", songs)
	}
	songs, _ = env.backend.SearchSongs(ctx, "sunrise", []string{"pop", "rock"})
	if len(songs) != 0 {
		t.Fatalf("expected no match when a tag is missing, got %+v", songs)
	}
}

func TestCreateUserCheckOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})

	// mismatch is reported before length
	err := env.backend.CreateUser(ctx, signup("a@b.com", "short", "other", "alice"))
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
	assertStatus(t, err, http.StatusBadRequest)

	err = env.backend.CreateUser(ctx, signup("a@b.com", "short", "short", "alice"))
	if !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	assertStatus(t, err, http.StatusUnprocessableEntity)

	if _, ok := env.auth.IssueToken("a@b.com"); ok {
		t.Fatal("auth subsystem was called before the password checks passed")
	}
}

func TestCreateUserScenario(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})

	if err := env.backend.CreateUser(ctx, signup("a@b.com", "longpass1", "longpass1", "alice")); err != nil {
		t.Fatalf("first signup: %v", err)
	}
	if env.profiles.Len() != 1 {
		t.Fatalf("expected one profile, got %d", env.profiles.Len())
	}

	err := env.backend.CreateUser(ctx, signup("a@b.com", "longpass1", "longpass1", "alice"))
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken on repeat signup, got %v", err)
	}

	err = env.backend.CreateUser(ctx, signup("c@d.com", "longpass1", "longpass1", "alice"))
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestCreateUserZeroIdentities(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	env.signUpAlice(t)

	// the profile store does not know the email, the auth subsystem does
	fresh := New(env.auth, env.tracks, testsupport.NewProfiles(), env.objects, env.durations, Options{})
	err := fresh.CreateUser(ctx, signup("a@b.com", "longpass1", "longpass1", "alice2"))
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestCreateUserCompensatesFailedProfile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	env.profiles.CreateErr = errors.New("insert failed")

	err := env.backend.CreateUser(ctx, signup("a@b.com", "longpass1", "longpass1", "alice"))
	if err == nil {
		t.Fatal("expected failure when the profile insert fails")
	}
	if len(env.auth.Deleted) != 1 {
		t.Fatalf("expected the auth user to be deleted, got %v", env.auth.Deleted)
	}
	if _, ok := env.auth.IssueToken("a@b.com"); ok {
		t.Fatal("orphaned auth user still exists")
	}
}

func TestCreateUserDuplicateKeyTolerated(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	env.auth.SignUpErr = &gotrue.APIError{
		Status:  http.StatusInternalServerError,
		Message: "Database error saving new user: duplicate key value violates unique constraint",
	}

	if err := env.backend.CreateUser(ctx, signup("a@b.com", "longpass1", "longpass1", "alice")); err != nil {
		t.Fatalf("duplicate key error should be tolerated, got %v", err)
	}
	if env.profiles.Len() != 1 {
		t.Fatalf("expected the profile to be created, got %d", env.profiles.Len())
	}

	env.auth.SignUpErr = &gotrue.APIError{Status: http.StatusUnprocessableEntity, Code: "weak_password", Message: "Password is too weak"}
	err := env.backend.CreateUser(ctx, signup("c@d.com", "longpass1", "longpass1", "carol"))
	be := assertStatus(t, err, http.StatusUnprocessableEntity)
	if be.Code != "weak_password" || be.Message != "Password is too weak" {
		t.Fatalf("expected remote error to pass through, got %+v", be)
	}
}

func TestUploadFlowFinalizeWithoutMedia(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	alice := env.signUpAlice(t)

	id, err := env.backend.UploadSongDetails(ctx, alice, schema.SongTempUpload{Name: strp("Song"), Tags: []string{"pop"}})
	if err != nil {
		t.Fatalf("UploadSongDetails error: %v", err)
	}
	if id != "T1" {
		t.Fatalf("expected id T1, got %q", id)
	}

	draft, _ := env.tracks.Get(id)
	if draft.Exposed {
		t.Fatal("new track must not be exposed")
	}
	if draft.FTS != "alice Song" || draft.UploaderID != alice.ID {
		t.Fatalf("unexpected draft %+v", draft)
	}

	if _, err := env.backend.GetSong(ctx, id); !errors.Is(err, ErrTrackNotFound) {
		t.Fatalf("draft track must not be readable, got %v", err)
	}
	if _, err := env.backend.GetSongAudio(ctx, id); !errors.Is(err, ErrTrackNotFound) {
		t.Fatalf("draft track audio must not be readable, got %v", err)
	}

	got, err := env.backend.FinalizeTrackUpload(ctx, alice, id)
	if err != nil || got != "T1" {
		t.Fatalf("FinalizeTrackUpload = %q, %v", got, err)
	}

	detail, err := env.backend.GetSong(ctx, id)
	if err != nil {
		t.Fatalf("GetSong error: %v", err)
	}
	if detail.Username != "alice" || detail.Name != "Song" {
		t.Fatalf("unexpected detail %+v", detail)
	}
	if _, err := env.backend.GetSongAudio(ctx, id); !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected ErrNoAudio for a track finalized without audio, got %v", err)
	}
}

func TestUploadSongDetailsRequiresUser(t *testing.T) {
	env := newTestEnv(t, Options{})
	_, err := env.backend.UploadSongDetails(context.Background(), nil, schema.SongTempUpload{Name: strp("Song"), Tags: []string{}})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestUploadTrackAudioOverwrites(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	alice := env.signUpAlice(t)
	id, _ := env.backend.UploadSongDetails(ctx, alice, schema.SongTempUpload{Name: strp("Song"), Tags: []string{"pop"}})

	if err := env.backend.UploadTrackAudio(ctx, id, &model.UploadedFile{Name: "first.mp3", Data: []byte("one")}); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	first, _ := env.tracks.Get(id)

	env.durations.Seconds = 42
	if err := env.backend.UploadTrackAudio(ctx, id, &model.UploadedFile{Name: "second.MP3", Data: []byte("two")}); err != nil {
		t.Fatalf("second upload: %v", err)
	}
	second, _ := env.tracks.Get(id)

	if *second.AudioPath == *first.AudioPath {
		t.Fatal("expected a fresh object name on re-upload")
	}
	if !strings.HasSuffix(*second.AudioPath, ".MP3") {
		t.Fatalf("expected extension to be kept, got %q", *second.AudioPath)
	}
	if *second.Length != 42 {
		t.Fatalf("expected length 42, got %v", *second.Length)
	}

	env.backend.FinalizeTrackUpload(ctx, alice, id)
	url, err := env.backend.GetSongAudio(ctx, id)
	if err != nil {
		t.Fatalf("GetSongAudio error: %v", err)
	}
	if !strings.Contains(url, *second.AudioPath) {
		t.Fatalf("signed url %q does not point at the latest audio", url)
	}
	if len(env.objects.Expiries) != 1 || env.objects.Expiries[0] != time.Hour {
		t.Fatalf("expected a 3600s expiry, got %v", env.objects.Expiries)
	}
}

func TestUploadTrackAudioFailures(t *testing.T) {
	ctx := context.Background()
	file := &model.UploadedFile{Name: "a.mp3", Data: []byte("data")}

	t.Run("missing id", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		if err := env.backend.UploadTrackAudio(ctx, "", file); !errors.Is(err, ErrMissingID) {
			t.Fatalf("expected ErrMissingID, got %v", err)
		}
	})

	t.Run("unreadable duration", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.durations.Err = errors.New("not audio")
		err := env.backend.UploadTrackAudio(ctx, "T1", file)
		assertStatus(t, err, http.StatusUnprocessableEntity)
		if env.objects.Len() != 0 {
			t.Fatal("nothing should be stored when the duration is unreadable")
		}
	})

	t.Run("unknown track removes stored object", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		err := env.backend.UploadTrackAudio(ctx, "T9", file)
		if !errors.Is(err, ErrTrackNotFound) {
			t.Fatalf("expected ErrTrackNotFound, got %v", err)
		}
		if env.objects.Len() != 0 {
			t.Fatal("stored object was not removed after the failed update")
		}
	})

	t.Run("storage failure", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.objects.UploadErr = errors.New("bucket gone")
		err := env.backend.UploadTrackAudio(ctx, "T1", file)
		var be *Error
		if !errors.As(err, &be) || be.Message != "bucket gone" {
			t.Fatalf("expected storage error to pass through, got %v", err)
		}
	})
}

func TestUploadTrackCoverImage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{NewObjectName: func(string) string { return "cover.png" }})
	alice := env.signUpAlice(t)
	id, _ := env.backend.UploadSongDetails(ctx, alice, schema.SongTempUpload{Name: strp("Song"), Tags: []string{}})

	if err := env.backend.UploadTrackCoverImage(ctx, "", &model.UploadedFile{Name: "c.png"}); !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
	if err := env.backend.UploadTrackCoverImage(ctx, id, &model.UploadedFile{Name: "c.png", Data: []byte("img")}); err != nil {
		t.Fatalf("UploadTrackCoverImage error: %v", err)
	}
	track, _ := env.tracks.Get(id)
	if track.CoverPath == nil || *track.CoverPath != "cover.png" {
		t.Fatalf("unexpected cover path %v", track.CoverPath)
	}
	if !env.objects.Has("track-cover-images", "cover.png") {
		t.Fatal("cover was not stored in the cover bucket")
	}
	if track.Exposed {
		t.Fatal("cover upload must not expose the track")
	}
}

func TestFinalizeTrackUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown id", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		if _, err := env.backend.FinalizeTrackUpload(ctx, nil, "nope"); !errors.Is(err, ErrTrackNotFound) {
			t.Fatalf("expected ErrTrackNotFound, got %v", err)
		}
	})

	t.Run("require media", func(t *testing.T) {
		env := newTestEnv(t, Options{RequireMediaOnFinalize: true})
		alice := env.signUpAlice(t)
		id, _ := env.backend.UploadSongDetails(ctx, alice, schema.SongTempUpload{Name: strp("Song"), Tags: []string{}})

		_, err := env.backend.FinalizeTrackUpload(ctx, alice, id)
		if !errors.Is(err, ErrNoAudio) {
			t.Fatalf("expected ErrNoAudio, got %v", err)
		}
		if track, _ := env.tracks.Get(id); track.Exposed {
			t.Fatal("track without audio was exposed")
		}

		env.backend.UploadTrackAudio(ctx, id, &model.UploadedFile{Name: "a.mp3", Data: []byte("a")})
		if _, err := env.backend.FinalizeTrackUpload(ctx, alice, id); err != nil {
			t.Fatalf("FinalizeTrackUpload error: %v", err)
		}
	})
}

func TestGetSongUploaderLookupFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	alice := env.signUpAlice(t)
	id, _ := env.backend.UploadSongDetails(ctx, alice, schema.SongTempUpload{Name: strp("Song"), Tags: []string{}})
	env.backend.FinalizeTrackUpload(ctx, alice, id)

	env.profiles.LookupErr = errors.New("profiles unavailable")
	detail, err := env.backend.GetSong(ctx, id)
	if err != nil {
		t.Fatalf("GetSong error: %v", err)
	}
	if detail.Username != "" {
		t.Fatalf("expected empty username, got %q", detail.Username)
	}
}

func TestGetSongAudioSignFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	alice := env.signUpAlice(t)
	id, _ := env.backend.UploadSongDetails(ctx, alice, schema.SongTempUpload{Name: strp("Song"), Tags: []string{}})
	env.backend.UploadTrackAudio(ctx, id, &model.UploadedFile{Name: "a.mp3", Data: []byte("a")})
	env.backend.FinalizeTrackUpload(ctx, alice, id)

	env.objects.SignErr = errors.New("signature failed")
	_, err := env.backend.GetSongAudio(ctx, id)
	var be *Error
	if !errors.As(err, &be) || be.Code != "signed_url_failed" {
		t.Fatalf("expected signing failure, got %v", err)
	}
}

func TestSessionsCarryUsername(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	env.signUpAlice(t)

	session, err := env.backend.ValidateOTP(ctx, schema.UserOTPVerify{Email: "a@b.com", OTP: "123456"})
	if err != nil {
		t.Fatalf("ValidateOTP error: %v", err)
	}
	if session.Username != "alice" {
		t.Fatalf("expected username alice, got %q", session.Username)
	}

	session, err = env.backend.SignInToUser(ctx, schema.UserSignIn{Email: "a@b.com", Password: strp("longpass1")})
	if err != nil {
		t.Fatalf("SignInToUser error: %v", err)
	}
	if session.Username != "alice" {
		t.Fatalf("expected username alice, got %q", session.Username)
	}

	refreshed, err := env.backend.GetAccessTokenFromRefresh(ctx, schema.UserRefreshToken{RefreshToken: strp(session.RefreshToken)})
	if err != nil {
		t.Fatalf("GetAccessTokenFromRefresh error: %v", err)
	}
	if refreshed.Username != "alice" || refreshed.AccessToken == session.AccessToken {
		t.Fatalf("unexpected refreshed session %+v", refreshed)
	}

	_, err = env.backend.SignInToUser(ctx, schema.UserSignIn{Email: "a@b.com", Password: strp("wrong-password")})
	be := assertStatus(t, err, http.StatusBadRequest)
	if be.Message != "Invalid login credentials" {
		t.Fatalf("unexpected message %q", be.Message)
	}

	_, err = env.backend.ValidateOTP(ctx, schema.UserOTPVerify{Email: "a@b.com", OTP: "123456"})
	assertStatus(t, err, http.StatusForbidden)
}

type unreachableAuth struct {
	*testsupport.Auth
}

func (unreachableAuth) GetUser(ctx context.Context, accessToken string) (*model.AuthUser, error) {
	return nil, errors.New("dial tcp 127.0.0.1:9999: connect: connection refused")
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	alice := env.signUpAlice(t)
	if alice.Email != "a@b.com" {
		t.Fatalf("unexpected user %+v", alice)
	}

	_, err := env.backend.Authenticate(ctx, "forged")
	be := assertStatus(t, err, http.StatusUnauthorized)
	if be.Code != "bad_jwt" {
		t.Fatalf("expected remote code to be kept, got %+v", be)
	}

	down := New(unreachableAuth{env.auth}, env.tracks, env.profiles, env.objects, env.durations, Options{})
	_, err = down.Authenticate(ctx, "anything")
	assertStatus(t, err, http.StatusInternalServerError)
}
