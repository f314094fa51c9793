package drive

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
)

// DefaultCallbackAddr is where the loopback redirect listener binds.
const DefaultCallbackAddr = "127.0.0.1:34115"

const authTimeout = 3 * time.Minute

// ErrAuthCancelled is returned when the user denies access in the browser.
var ErrAuthCancelled = errors.New("authorization cancelled")

// LoadConfig reads an OAuth client secret file ("installed" application JSON).
func LoadConfig(credentialsPath string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}
	config, err := google.ConfigFromJSON(b, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	return config, nil
}

// SaveToken writes token as JSON, readable only by the owner.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// LoadToken reads a token stored by SaveToken.
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("invalid token file %s: %w", path, err)
	}
	return token, nil
}

// Authorizer runs the OAuth authorization-code flow with a loopback redirect.
type Authorizer struct {
	Config *oauth2.Config
	// Addr is the listen address for the redirect; DefaultCallbackAddr if empty.
	Addr string
	// OpenURL presents the consent URL to the user.
	OpenURL func(url string)
}

// Authorize waits for the browser redirect, exchanges the code and returns the token.
func (a *Authorizer) Authorize(ctx context.Context) (*oauth2.Token, error) {
	addr := a.Addr
	if addr == "" {
		addr = DefaultCallbackAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback listener: %w", err)
	}

	config := *a.Config
	config.RedirectURL = fmt.Sprintf("http://%s/oauth2callback", ln.Addr().String())

	state, err := randomState()
	if err != nil {
		ln.Close()
		return nil, err
	}

	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)
	var once sync.Once
	deliver := func(r result) {
		once.Do(func() { results <- r })
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		if e := q.Get("error"); e != "" {
			fmt.Fprintln(w, "Authorization cancelled. You can close this window.")
			deliver(result{err: fmt.Errorf("%w: %s", ErrAuthCancelled, e)})
			return
		}
		fmt.Fprintln(w, "Authorization complete. You can close this window.")
		deliver(result{code: q.Get("code")})
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go server.Serve(ln)
	defer server.Shutdown(context.Background())

	if a.OpenURL != nil {
		a.OpenURL(config.AuthCodeURL(state, oauth2.AccessTypeOffline))
	}

	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	select {
	case r := <-results:
		if r.err != nil {
			return nil, r.err
		}
		token, err := config.Exchange(ctx, r.code)
		if err != nil {
			return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
		}
		return token, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("authentication timed out: %w", ctx.Err())
	}
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// savingTokenSource persists the token whenever the access token changes.
type savingTokenSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.last {
		if err := SaveToken(s.path, token); err != nil {
			return nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}
		s.last = token.AccessToken
	}
	return token, nil
}
