package live

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
)

// Credentials are the vendor broker login credentials (spec §6:
// ANGEL_API_KEY, ANGEL_CLIENT_ID, ANGEL_PASSWORD|ANGEL_MPIN, ANGEL_TOTP_SECRET).
type Credentials struct {
	APIKey     string
	ClientID   string
	Password   string
	TOTPSecret string // base32, RFC 6238
}

// loginRequest is the loginByPassword payload: client_id, password, and a
// freshly generated TOTP code (spec §6).
type loginRequest struct {
	ClientCode string `json:"clientcode"`
	Password   string `json:"password"`
	TOTP       string `json:"totp"`
}

type loginResponse struct {
	Data struct {
		JWTToken      string `json:"jwtToken"`
		RefreshToken  string `json:"refreshToken"`
		FeedToken     string `json:"feedToken"`
	} `json:"data"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// timeSource returns the broker's trusted current time, used to correct
// clock drift before generating a TOTP code (spec §6: "fetch network time
// (HTTP Date header) to correct clock drift").
type timeSource func() time.Time

// Session owns the JWT/refresh/feed token triple for one broker login, and
// guarantees concurrent 401 callers share exactly one refresh (spec §5:
// "single-flight refresh primitive").
type Session struct {
	httpClient *http.Client
	baseURL    string
	creds      Credentials
	clockSkew  timeSource

	mu           sync.Mutex
	jwt          string
	refreshToken string
	feedToken    string
	refreshing   chan struct{} // non-nil while a refresh is in flight
	refreshErr   error         // outcome of the last completed refresh
}

// NewSession creates an unauthenticated Session; call Login before use.
func NewSession(httpClient *http.Client, baseURL string, creds Credentials) *Session {
	return &Session{httpClient: httpClient, baseURL: baseURL, creds: creds, clockSkew: time.Now}
}

// JWT returns the current bearer token (empty before first login).
func (s *Session) JWT() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jwt
}

// FeedToken returns the current market-data feed token.
func (s *Session) FeedToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feedToken
}

// Login submits client_id, password, and a TOTP code generated from the
// session's time source (local time, shifted by the offset NetworkTime
// measured if it has been called), storing the resulting JWT/refresh/feed
// tokens.
func (s *Session) Login(ctx context.Context) error {
	code, err := totp.GenerateCode(s.creds.TOTPSecret, s.clockSkew())
	if err != nil {
		return fmt.Errorf("live.Session.Login: generate TOTP: %w", err)
	}

	resp, err := s.post(ctx, "/rest/auth/angelbroking/user/v1/loginByPassword", loginRequest{
		ClientCode: s.creds.ClientID,
		Password:   s.creds.Password,
		TOTP:       code,
	})
	if err != nil {
		return fmt.Errorf("live.Session.Login: %w", err)
	}

	var parsed loginResponse
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return fmt.Errorf("live.Session.Login: decode: %w", err)
	}

	s.mu.Lock()
	s.jwt = parsed.Data.JWTToken
	s.refreshToken = parsed.Data.RefreshToken
	s.feedToken = parsed.Data.FeedToken
	s.mu.Unlock()
	return nil
}

// Refresh re-derives a JWT via generateTokens. Concurrent callers block on
// the same in-flight refresh instead of each issuing a request (spec §5):
// the first caller performs the refresh and broadcasts the outcome to
// everyone else waiting on the channel.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.refreshing != nil {
		ch := s.refreshing
		s.mu.Unlock()
		<-ch
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.refreshErr
	}
	ch := make(chan struct{})
	s.refreshing = ch
	refreshToken := s.refreshToken
	s.mu.Unlock()

	err := s.doRefresh(ctx, refreshToken)
	if err != nil {
		// Refresh failed: fall back to a full re-login (spec §4.8: "if
		// refresh fails, re-login").
		if loginErr := s.Login(ctx); loginErr != nil {
			err = fmt.Errorf("live.Session.Refresh: refresh failed (%v), re-login failed: %w", err, loginErr)
		} else {
			err = nil
		}
	}

	s.mu.Lock()
	s.refreshing = nil
	s.refreshErr = err
	s.mu.Unlock()
	close(ch)
	return err
}

func (s *Session) doRefresh(ctx context.Context, refreshToken string) error {
	resp, err := s.post(ctx, "/rest/auth/angelbroking/jwt/v1/generateTokens", refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return fmt.Errorf("live.Session.doRefresh: %w", err)
	}
	var parsed loginResponse
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return fmt.Errorf("live.Session.doRefresh: decode: %w", err)
	}
	s.mu.Lock()
	s.jwt = parsed.Data.JWTToken
	s.refreshToken = parsed.Data.RefreshToken
	s.mu.Unlock()
	return nil
}

// Logout invalidates the session server-side.
func (s *Session) Logout(ctx context.Context) error {
	_, err := s.post(ctx, "/rest/secure/angelbroking/user/v1/logout", struct {
		ClientCode string `json:"clientcode"`
	}{ClientCode: s.creds.ClientID})
	s.mu.Lock()
	s.jwt = ""
	s.refreshToken = ""
	s.feedToken = ""
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("live.Session.Logout: %w", err)
	}
	return nil
}

// post issues an unauthenticated (pre-JWT) or self-authenticated login/
// refresh/logout call directly, bypassing Client.do since those endpoints
// predate having a JWT to attach.
func (s *Session) post(ctx context.Context, path string, body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("live.Session.post: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("live.Session.post: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-PrivateKey", s.creds.APIKey)
	req.Header.Set("X-UserType", "USER")
	req.Header.Set("X-SourceID", "WEB")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("live.Session.post: %w", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("live.Session.post: read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("live.Session.post: status %d: %s", resp.StatusCode, out)
	}
	return out, nil
}

// NetworkTime fetches the broker's HTTP Date header to correct local clock
// drift before generating a TOTP code (spec §6).
func (s *Session) NetworkTime(ctx context.Context) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.baseURL+"/", nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("live.Session.NetworkTime: new request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("live.Session.NetworkTime: %w", err)
	}
	defer resp.Body.Close()

	dateHeader := resp.Header.Get("Date")
	if dateHeader == "" {
		return time.Now(), nil
	}
	t, err := http.ParseTime(dateHeader)
	if err != nil {
		return time.Now(), nil
	}
	offset := t.Sub(time.Now())
	s.clockSkew = func() time.Time { return time.Now().Add(offset) }
	return t, nil
}
