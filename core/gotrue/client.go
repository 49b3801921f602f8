// Package gotrue adapts the supabase-community GoTrue client to the auth
// calls the backend makes.
package gotrue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"Tunedrop/model"

	"github.com/google/uuid"
	gotruego "github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
)

// APIError is a non-2xx answer from the auth API.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth api %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("auth api %d: %s", e.Status, e.Message)
}

// Client talks to the auth API with the service key.
type Client struct {
	api        gotruego.Client
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client. baseURL is the auth root, e.g.
// https://<project>.supabase.co/auth/v1.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		api:        gotruego.New("", apiKey).WithCustomGoTrueURL(strings.TrimRight(baseURL, "/")),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// contextTransport binds a request context to calls made by the library,
// whose methods take none.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

func (c *Client) with(ctx context.Context) gotruego.Client {
	hc := *c.httpClient
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc.Transport = contextTransport{ctx: ctx, base: base}
	return c.api.WithClient(hc)
}

// the library reports non-2xx answers as "response status code <n>: <body>"
var statusErrPattern = regexp.MustCompile(`(?s)response status code (\d+)(?::\s*(.*))?$`)

// convertError turns a status error from the library into an *APIError.
// Transport failures pass through unchanged.
func convertError(err error) error {
	if err == nil {
		return nil
	}
	m := statusErrPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return err
	}
	status, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return err
	}
	return decodeError(status, []byte(m[2]))
}

// decodeError understands both the current error body
// ({"code":400,"error_code":"...","msg":"..."}) and the OAuth-style one used
// by the token endpoint ({"error":"...","error_description":"..."}).
func decodeError(status int, raw []byte) *APIError {
	var body struct {
		ErrorCode        string `json:"error_code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(raw, &body); err != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
		return apiErr
	}

	apiErr.Code = body.ErrorCode
	if apiErr.Code == "" {
		apiErr.Code = body.Error
	}
	for _, m := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
		if m != "" {
			apiErr.Message = m
			break
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func toAuthUser(u types.User) *model.AuthUser {
	user := &model.AuthUser{
		Email:      u.Email,
		Role:       u.Role,
		Identities: make([]model.Identity, 0, len(u.Identities)),
		CreatedAt:  u.CreatedAt,
	}
	if u.ID != uuid.Nil {
		user.ID = u.ID.String()
	}
	for _, ident := range u.Identities {
		user.Identities = append(user.Identities, model.Identity{ID: ident.ID, Provider: ident.Provider})
	}
	return user
}

func toSession(s types.Session) *model.Session {
	return &model.Session{
		AccessToken:  s.AccessToken,
		TokenType:    s.TokenType,
		ExpiresIn:    int(s.ExpiresIn),
		ExpiresAt:    int64(s.ExpiresAt),
		RefreshToken: s.RefreshToken,
		User:         toAuthUser(s.User),
	}
}

// SignUp registers a new email/password user. When the project
// auto-confirms users the API answers with a session; otherwise with the
// bare user. Either way the user is returned.
func (c *Client) SignUp(ctx context.Context, email, password string) (*model.AuthUser, error) {
	resp, err := c.with(ctx).Signup(types.SignupRequest{Email: email, Password: password})
	if err != nil {
		return nil, convertError(err)
	}
	if resp.Session.AccessToken != "" {
		return toAuthUser(resp.Session.User), nil
	}
	return toAuthUser(resp.User), nil
}

func (c *Client) token(ctx context.Context, req types.TokenRequest) (*model.Session, error) {
	resp, err := c.with(ctx).Token(req)
	if err != nil {
		return nil, convertError(err)
	}
	return toSession(resp.Session), nil
}

// SignInWithPassword exchanges email and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	return c.token(ctx, types.TokenRequest{GrantType: "password", Email: email, Password: password})
}

// RefreshSession exchanges a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error) {
	return c.token(ctx, types.TokenRequest{GrantType: "refresh_token", RefreshToken: refreshToken})
}

// VerifyEmailOTP verifies a one-time code sent to email.
func (c *Client) VerifyEmailOTP(ctx context.Context, email, token string) (*model.Session, error) {
	resp, err := c.with(ctx).VerifyForUser(types.VerifyForUserRequest{
		Type:  types.VerificationType("email"),
		Email: email,
		Token: token,
	})
	if err != nil {
		return nil, convertError(err)
	}
	return toSession(resp.Session), nil
}

// GetUser resolves an access token to its user.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*model.AuthUser, error) {
	resp, err := c.with(ctx).WithToken(accessToken).GetUser()
	if err != nil {
		return nil, convertError(err)
	}
	return toAuthUser(resp.User), nil
}

// DeleteUser removes a user with the admin API, authorised by the service key.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid auth user id %q: %w", id, err)
	}
	err = c.with(ctx).WithToken(c.apiKey).AdminDeleteUser(types.AdminDeleteUserRequest{UserID: userID})
	return convertError(err)
}
