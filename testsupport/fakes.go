// Package testsupport provides in-memory stand-ins for the remote services
// the backend talks to. They are safe for concurrent use.
package testsupport

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"Tunedrop/core/gotrue"
	"Tunedrop/model"
	"Tunedrop/repository"
)

// Auth is an in-memory auth subsystem. Access tokens are "token-<n>" and
// refresh tokens "refresh-<n>".
type Auth struct {
	mu       sync.Mutex
	seq      int
	users    map[string]*authUser // by email
	access   map[string]string    // token -> user id
	refresh  map[string]string    // token -> user id
	OTPCodes map[string]string    // email -> code

	// SignUpErr, when set, is returned by SignUp together with the user.
	SignUpErr error
	// Deleted records ids passed to DeleteUser.
	Deleted []string
	// GetUserCalls counts token lookups.
	GetUserCalls int
}

type authUser struct {
	user     model.AuthUser
	password string
}

// NewAuth creates an empty auth fake.
func NewAuth() *Auth {
	return &Auth{
		users:    make(map[string]*authUser),
		access:   make(map[string]string),
		refresh:  make(map[string]string),
		OTPCodes: make(map[string]string),
	}
}

func (a *Auth) next(prefix string) string {
	a.seq++
	return fmt.Sprintf("%s-%d", prefix, a.seq)
}

func (a *Auth) byID(id string) *authUser {
	for _, u := range a.users {
		if u.user.ID == id {
			return u
		}
	}
	return nil
}

func (a *Auth) session(u *authUser) *model.Session {
	access := a.next("token")
	refresh := a.next("refresh")
	a.access[access] = u.user.ID
	a.refresh[refresh] = u.user.ID
	user := u.user
	return &model.Session{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    3600,
		RefreshToken: refresh,
		User:         &user,
	}
}

// SignUp creates a user. A taken email returns a user without identities.
func (a *Auth) SignUp(ctx context.Context, email, password string) (*model.AuthUser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if u, ok := a.users[email]; ok {
		user := u.user
		user.Identities = []model.Identity{}
		return &user, a.SignUpErr
	}
	id := a.next("user")
	u := &authUser{
		user: model.AuthUser{
			ID:         id,
			Email:      email,
			Identities: []model.Identity{{ID: id, Provider: "email"}},
			CreatedAt:  time.Now().UTC(),
		},
		password: password,
	}
	a.users[email] = u
	a.OTPCodes[email] = "123456"
	user := u.user
	return &user, a.SignUpErr
}

func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	u, ok := a.users[email]
	if !ok || u.password != password {
		return nil, &gotrue.APIError{Status: http.StatusBadRequest, Code: "invalid_credentials", Message: "Invalid login credentials"}
	}
	return a.session(u), nil
}

func (a *Auth) VerifyEmailOTP(ctx context.Context, email, token string) (*model.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	code, ok := a.OTPCodes[email]
	if !ok || code != token {
		return nil, &gotrue.APIError{Status: http.StatusForbidden, Code: "otp_expired", Message: "Token has expired or is invalid"}
	}
	delete(a.OTPCodes, email)
	return a.session(a.users[email]), nil
}

func (a *Auth) RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id, ok := a.refresh[refreshToken]
	if !ok {
		return nil, &gotrue.APIError{Status: http.StatusBadRequest, Code: "refresh_token_not_found", Message: "Invalid Refresh Token: Refresh Token Not Found"}
	}
	delete(a.refresh, refreshToken)
	u := a.byID(id)
	if u == nil {
		return nil, &gotrue.APIError{Status: http.StatusNotFound, Code: "user_not_found", Message: "User not found"}
	}
	return a.session(u), nil
}

func (a *Auth) GetUser(ctx context.Context, accessToken string) (*model.AuthUser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.GetUserCalls++
	id, ok := a.access[accessToken]
	if !ok {
		return nil, &gotrue.APIError{Status: http.StatusForbidden, Code: "bad_jwt", Message: "invalid JWT: unable to parse or verify signature"}
	}
	u := a.byID(id)
	if u == nil {
		return nil, &gotrue.APIError{Status: http.StatusNotFound, Code: "user_not_found", Message: "User not found"}
	}
	user := u.user
	return &user, nil
}

func (a *Auth) DeleteUser(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.Deleted = append(a.Deleted, id)
	for email, u := range a.users {
		if u.user.ID == id {
			delete(a.users, email)
			return nil
		}
	}
	return &gotrue.APIError{Status: http.StatusNotFound, Code: "user_not_found", Message: "User not found"}
}

// IssueToken signs in a user directly and returns an access token.
func (a *Auth) IssueToken(email string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	u, ok := a.users[email]
	if !ok {
		return "", false
	}
	return a.session(u).AccessToken, true
}

// Tracks is an in-memory TrackRepository. Ids are "T1", "T2", ...
type Tracks struct {
	mu     sync.Mutex
	seq    int
	tracks map[string]*model.Track

	// UpdateErr, when set, fails UpdateAudio and UpdateCover.
	UpdateErr error
	// LastQuery is the tsquery of the latest Search call.
	LastQuery string
}

// NewTracks creates an empty track store.
func NewTracks() *Tracks {
	return &Tracks{tracks: make(map[string]*model.Track)}
}

var _ repository.TrackRepository = (*Tracks)(nil)

// Get returns a copy of any track, exposed or not.
func (t *Tracks) Get(id string) (model.Track, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.tracks[id]
	if !ok {
		return model.Track{}, false
	}
	return *tr, true
}

// matches treats tsquery as "a | b | c" and checks each word against the
// whitespace split full-text document.
func matches(fts, tsquery string) bool {
	words := strings.Fields(strings.ToLower(fts))
	for _, term := range strings.Split(tsquery, "|") {
		term = strings.ToLower(unquoteLexeme(strings.TrimSpace(term)))
		for _, w := range words {
			if term != "" && w == term {
				return true
			}
		}
	}
	return false
}

var lexemeUnescaper = strings.NewReplacer(`''`, `'`, `\\`, `\`)

// unquoteLexeme strips the quotes of a 'quoted' tsquery lexeme.
func unquoteLexeme(term string) string {
	if len(term) >= 2 && strings.HasPrefix(term, "'") && strings.HasSuffix(term, "'") {
		return lexemeUnescaper.Replace(term[1 : len(term)-1])
	}
	return term
}

func containsAll(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

func (t *Tracks) Search(ctx context.Context, tsquery string, tags []string) ([]model.TrackSummary, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.LastQuery = tsquery
	out := make([]model.TrackSummary, 0)
	for _, tr := range t.tracks {
		if !tr.Exposed || !matches(tr.FTS, tsquery) || !containsAll(tr.Tags, tags) {
			continue
		}
		out = append(out, model.TrackSummary{
			ID:         tr.ID,
			Name:       tr.Name,
			Tags:       tr.Tags,
			UploadedAt: tr.UploadedAt,
			Length:     tr.Length,
			CoverPath:  tr.CoverPath,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *Tracks) GetExposed(ctx context.Context, id string) (*model.Track, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.tracks[id]
	if !ok || !tr.Exposed {
		return nil, repository.ErrTrackNotFound
	}
	cp := *tr
	return &cp, nil
}

func (t *Tracks) GetExposedAudioPath(ctx context.Context, id string) (string, error) {
	tr, err := t.GetExposed(ctx, id)
	if err != nil {
		return "", err
	}
	if tr.AudioPath == nil {
		return "", nil
	}
	return *tr.AudioPath, nil
}

func (t *Tracks) GetByID(ctx context.Context, id string) (*model.Track, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.tracks[id]
	if !ok {
		return nil, repository.ErrTrackNotFound
	}
	cp := *tr
	return &cp, nil
}

func (t *Tracks) Create(ctx context.Context, track *model.Track) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	track.ID = fmt.Sprintf("T%d", t.seq)
	track.UploadedAt = time.Now().UTC()
	if track.Tags == nil {
		track.Tags = []string{}
	}
	cp := *track
	t.tracks[track.ID] = &cp
	return track.ID, nil
}

func (t *Tracks) update(id string, fn func(*model.Track)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.tracks[id]
	if !ok {
		return repository.ErrTrackNotFound
	}
	fn(tr)
	return nil
}

func (t *Tracks) UpdateAudio(ctx context.Context, id, audioPath string, length float64) error {
	if t.UpdateErr != nil {
		return t.UpdateErr
	}
	return t.update(id, func(tr *model.Track) {
		tr.AudioPath = &audioPath
		tr.Length = &length
	})
}

func (t *Tracks) UpdateCover(ctx context.Context, id, coverPath string) error {
	if t.UpdateErr != nil {
		return t.UpdateErr
	}
	return t.update(id, func(tr *model.Track) {
		tr.CoverPath = &coverPath
	})
}

func (t *Tracks) Expose(ctx context.Context, id string) error {
	return t.update(id, func(tr *model.Track) {
		tr.Exposed = true
	})
}

// Profiles is an in-memory ProfileRepository.
type Profiles struct {
	mu       sync.Mutex
	profiles map[string]model.Profile

	// CreateErr, when set, fails Create.
	CreateErr error
	// LookupErr, when set, fails UsernameByID and GetByID.
	LookupErr error
}

// NewProfiles creates an empty profile store.
func NewProfiles() *Profiles {
	return &Profiles{profiles: make(map[string]model.Profile)}
}

var _ repository.ProfileRepository = (*Profiles)(nil)

// Add inserts a profile directly.
func (p *Profiles) Add(profile model.Profile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[profile.ID] = profile
}

// Len returns the number of stored profiles.
func (p *Profiles) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.profiles)
}

func (p *Profiles) Create(ctx context.Context, profile *model.Profile) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateErr != nil {
		return p.CreateErr
	}
	for _, existing := range p.profiles {
		if existing.ID == profile.ID || existing.Email == profile.Email || existing.Username == profile.Username {
			return repository.ErrDuplicateUser
		}
	}
	profile.CreatedAt = time.Now().UTC()
	p.profiles[profile.ID] = *profile
	return nil
}

func (p *Profiles) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.LookupErr != nil {
		return nil, p.LookupErr
	}
	profile, ok := p.profiles[id]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	return &profile, nil
}

func (p *Profiles) UsernameByID(ctx context.Context, id string) (string, error) {
	profile, err := p.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return profile.Username, nil
}

func (p *Profiles) exists(match func(model.Profile) bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, profile := range p.profiles {
		if match(profile) {
			return true
		}
	}
	return false
}

func (p *Profiles) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return p.exists(func(pr model.Profile) bool { return pr.Email == email }), nil
}

func (p *Profiles) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return p.exists(func(pr model.Profile) bool { return pr.Username == username }), nil
}

// Objects is an in-memory object store keyed by "bucket/name".
type Objects struct {
	mu      sync.Mutex
	objects map[string][]byte

	UploadErr error
	SignErr   error
	// Expiries records the expiry requested for each signed URL.
	Expiries []time.Duration
}

// NewObjects creates an empty object store.
func NewObjects() *Objects {
	return &Objects{objects: make(map[string][]byte)}
}

// Has reports whether bucket/name is stored.
func (o *Objects) Has(bucket, name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.objects[bucket+"/"+name]
	return ok
}

// Len returns the number of stored objects.
func (o *Objects) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.objects)
}

func (o *Objects) Upload(ctx context.Context, bucket, name string, data []byte, contentType string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.UploadErr != nil {
		return "", o.UploadErr
	}
	o.objects[bucket+"/"+name] = append([]byte(nil), data...)
	return name, nil
}

func (o *Objects) SignedURL(ctx context.Context, bucket, name string, expiry time.Duration) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.SignErr != nil {
		return "", o.SignErr
	}
	if _, ok := o.objects[bucket+"/"+name]; !ok {
		return "", fmt.Errorf("object %s/%s not found", bucket, name)
	}
	o.Expiries = append(o.Expiries, expiry)
	return fmt.Sprintf("https://storage.test/%s/%s?X-Amz-Expires=%d", bucket, name, int(expiry.Seconds())), nil
}

func (o *Objects) Remove(ctx context.Context, bucket, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, bucket+"/"+name)
	return nil
}

// Durations returns a fixed duration or error.
type Durations struct {
	Seconds float64
	Err     error
}

func (p *Durations) Duration(ctx context.Context, data []byte) (float64, error) {
	if p.Err != nil {
		return 0, p.Err
	}
	return p.Seconds, nil
}
