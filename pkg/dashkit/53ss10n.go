package dashkit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/ccamel/dashkit/internal/util"
	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

var (
	// ErrInvalidCredentials reports a login form answered by the login page again.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrCorruptedSession   = errors.New("corrupted session")
)

// Login submits the login form and keeps the resulting session.
func (c *Client) Login(ctx context.Context, username, password string) error {
	logger := c.logger.With().Str("username", username).Logger()
	ctx = logger.WithContext(ctx)
	loginURL := c.resolve(c.config.Endpoints.Login)

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	request.Header.Set(util.HeaderContentType, util.MediaTypeFormURLEncoded)

	response, err := c.send(request)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, response.Body)

	if response.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("login: unexpected status %d", response.StatusCode)
	}

	if response.Request.URL.Path == loginURL.Path {
		log.Ctx(ctx).Warn().Msg("🔒 credentials rejected")
		return ErrInvalidCredentials
	}

	c.persist(ctx)
	log.Ctx(ctx).Info().Msg("🔓 logged in")

	return nil
}

// Logout ends the session on the dashboard, when a logout endpoint is known, and forgets it
// locally.
func (c *Client) Logout(ctx context.Context) error {
	ctx = c.logger.WithContext(ctx)

	if target, ok := c.config.Endpoints.Target(EndpointLogout); ok {
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(target).String(), nil)
		if err != nil {
			return err
		}

		response, err := c.send(request)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("🔒 remote logout failed")
		} else {
			_, _ = io.Copy(io.Discard, response.Body)
			_ = response.Body.Close()
		}
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	c.jar = jar

	if c.store != nil {
		if err := c.store.Clear(); err != nil {
			return err
		}
	}

	log.Ctx(ctx).Info().Msg("🔒 logged out")

	return nil
}

// SessionStore keeps the session cookies between two runs.
type SessionStore interface {
	Load() ([]*http.Cookie, error)
	Save(cookies []*http.Cookie) error
	Clear() error
}

type storedCookie struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

type storedSession struct {
	Cookies []storedCookie `yaml:"cookies"`
}

// FileSessionStore stores the session cookies in a YAML file.
type FileSessionStore struct {
	fs   afero.Fs
	path string
}

func NewFileSessionStore(fs afero.Fs, path string) *FileSessionStore {
	return &FileSessionStore{fs: fs, path: path}
}

func (s *FileSessionStore) Path() string { return s.path }

// Load returns the stored cookies, none when nothing has been stored yet.
func (s *FileSessionStore) Load() ([]*http.Cookie, error) {
	content, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", s.path, err)
	}

	var session storedSession
	if err := yaml.NewDecoder(bytes.NewReader(content), yaml.Strict()).Decode(&session); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", s.path, err)
	}

	cookies := make([]*http.Cookie, 0, len(session.Cookies))
	for n, c := range session.Cookies {
		if c.Name == "" {
			return nil, fmt.Errorf("%w: cookie #%d of %s has no name", ErrCorruptedSession, n, s.path)
		}
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value})
	}

	return cookies, nil
}

func (s *FileSessionStore) Save(cookies []*http.Cookie) error {
	session := storedSession{Cookies: make([]storedCookie, 0, len(cookies))}
	for _, c := range cookies {
		session.Cookies = append(session.Cookies, storedCookie{Name: c.Name, Value: c.Value})
	}

	content, err := yaml.Marshal(session)
	if err != nil {
		return err
	}

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating session folder: %w", err)
	}

	return afero.WriteFile(s.fs, s.path, content, 0o600)
}

func (s *FileSessionStore) Clear() error {
	err := s.fs.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return err
}
