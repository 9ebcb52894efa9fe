package gmail

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
)

// DefaultScopes grants read, send and label changes.
var DefaultScopes = []string{gmailapi.GmailModifyScope}

// ErrAuthorizationRequired is returned when no usable token exists and
// interactive authorisation is disabled.
var ErrAuthorizationRequired = errors.New("gmail: no valid token and interactive authorisation disabled; run `autoreplyd authorize`")

const authTimeout = 5 * time.Minute

// AuthConfig holds OAuth configuration for the Gmail account.
type AuthConfig struct {
	CredentialsPath string
	TokenPath       string
	Scopes          []string
	Interactive     bool
	// Out receives the consent URL during interactive authorisation.
	Out io.Writer
}

// Authenticator produces OAuth2 token sources for the Gmail API.
type Authenticator struct {
	cfg AuthConfig
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.Out == nil {
		cfg.Out = os.Stderr
	}
	return &Authenticator{cfg: cfg}
}

// TokenSource loads the stored token, falling back to interactive
// authorisation when allowed. Refreshed tokens are written back to the token file.
func (a *Authenticator) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	conf, err := a.oauthConfig()
	if err != nil {
		return nil, err
	}

	tok, err := loadToken(a.cfg.TokenPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("gmail: ignoring unreadable token file %s: %v", a.cfg.TokenPath, err)
		}
		if !a.cfg.Interactive {
			return nil, ErrAuthorizationRequired
		}
		tok, err = a.authorize(ctx, conf)
		if err != nil {
			return nil, err
		}
	} else if !tok.Valid() && tok.RefreshToken == "" {
		if !a.cfg.Interactive {
			return nil, ErrAuthorizationRequired
		}
		tok, err = a.authorize(ctx, conf)
		if err != nil {
			return nil, err
		}
	}

	return &persistingTokenSource{
		base: conf.TokenSource(context.WithoutCancel(ctx), tok),
		path: a.cfg.TokenPath,
		last: tok.AccessToken,
	}, nil
}

// Authorize runs the interactive consent flow unconditionally and stores the token.
func (a *Authenticator) Authorize(ctx context.Context) (*oauth2.Token, error) {
	conf, err := a.oauthConfig()
	if err != nil {
		return nil, err
	}
	return a.authorize(ctx, conf)
}

func (a *Authenticator) oauthConfig() (*oauth2.Config, error) {
	data, err := os.ReadFile(a.cfg.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read gmail credentials %s: %w", a.cfg.CredentialsPath, err)
	}
	conf, err := google.ConfigFromJSON(data, a.cfg.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gmail credentials: %w", err)
	}
	return conf, nil
}

func (a *Authenticator) authorize(ctx context.Context, conf *oauth2.Config) (*oauth2.Token, error) {
	state, err := randomState()
	if err != nil {
		return nil, err
	}

	srv := newCallbackServer(state)
	if err := srv.start(); err != nil {
		return nil, err
	}
	defer srv.stop()

	conf.RedirectURL = srv.redirectURI()
	url := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(a.cfg.Out, "Open the following URL in your browser to authorise Gmail access:\n\n%s\n\n", url)

	waitCtx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()
	code, err := srv.waitForCode(waitCtx)
	if err != nil {
		return nil, err
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorisation code: %w", err)
	}
	if err := saveToken(a.cfg.TokenPath, tok); err != nil {
		return nil, err
	}
	log.Printf("gmail: token stored at %s", a.cfg.TokenPath)
	return tok, nil
}

// persistingTokenSource writes refreshed tokens back to disk.
type persistingTokenSource struct {
	mu   sync.Mutex
	base oauth2.TokenSource
	path string
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := saveToken(s.path, tok); err != nil {
			log.Printf("gmail: failed to persist refreshed token: %v", err)
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("invalid token file: %w", err)
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// callbackServer receives the OAuth redirect on a loopback port.
type callbackServer struct {
	expectedState string
	codeChan      chan string
	errChan       chan error
	server        *http.Server
	listener      net.Listener
}

func newCallbackServer(expectedState string) *callbackServer {
	return &callbackServer{
		expectedState: expectedState,
		codeChan:      make(chan string, 1),
		errChan:       make(chan error, 1),
	}
}

func (s *callbackServer) start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleCallback)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to start oauth callback listener: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.fail(err)
		}
	}()
	return nil
}

func (s *callbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if errParam := q.Get("error"); errParam != "" {
		s.fail(fmt.Errorf("oauth error: %s %s", errParam, q.Get("error_description")))
		fmt.Fprint(w, callbackPage("Authorisation failed: "+html.EscapeString(errParam)))
		return
	}
	if q.Get("state") != s.expectedState {
		s.fail(errors.New("oauth state mismatch"))
		fmt.Fprint(w, callbackPage("Authorisation failed: invalid state"))
		return
	}
	code := q.Get("code")
	if code == "" {
		s.fail(errors.New("no authorisation code received"))
		fmt.Fprint(w, callbackPage("Authorisation failed: no code received"))
		return
	}

	select {
	case s.codeChan <- code:
	default:
	}
	fmt.Fprint(w, callbackPage("Authorisation complete. You can close this window."))
}

func (s *callbackServer) fail(err error) {
	select {
	case s.errChan <- err:
	default:
	}
}

func (s *callbackServer) waitForCode(ctx context.Context) (string, error) {
	select {
	case code := <-s.codeChan:
		return code, nil
	case err := <-s.errChan:
		return "", err
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for oauth callback: %w", ctx.Err())
	}
}

func (s *callbackServer) stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(ctx)
}

func (s *callbackServer) redirectURI() string {
	return fmt.Sprintf("http://%s/callback", s.listener.Addr().String())
}

func callbackPage(message string) string {
	return "<!DOCTYPE html><html><head><title>autoreply</title></head><body><p>" + message + "</p></body></html>"
}
