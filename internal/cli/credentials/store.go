// Package credentials stores the API contexts (server URL and bearer token)
// used by the nfs4stated admin commands.
package credentials

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marmos91/nfs4state/pkg/config"
)

const (
	// FileName is the contexts file, kept next to config.yaml.
	FileName = "contexts.yaml"

	FilePermissions = 0600
	DirPermissions  = 0700

	// expirySkew treats a token as expired slightly early so a request does
	// not race its expiry.
	expirySkew = time.Minute
)

var (
	ErrNoCurrentContext = errors.New("no current context set")
	ErrContextNotFound  = errors.New("context not found")
	ErrNotLoggedIn      = errors.New("not logged in - run 'nfs4stated login' first")
)

// Context is a connection to one nfs4stated API. Subject and Role are read
// from the token claims when the token is stored.
type Context struct {
	ServerURL string    `yaml:"server_url"`
	Subject   string    `yaml:"subject,omitempty"`
	Role      string    `yaml:"role,omitempty"`
	Token     string    `yaml:"token,omitempty"`
	ExpiresAt time.Time `yaml:"expires_at,omitempty"`
}

// IsExpired reports whether the token expires within expirySkew. Contexts
// without an expiry never expire.
func (c *Context) IsExpired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().Add(expirySkew).After(c.ExpiresAt)
}

func (c *Context) HasToken() bool {
	return c.Token != ""
}

type file struct {
	Current  string              `yaml:"current_context"`
	Contexts map[string]*Context `yaml:"contexts"`
}

// Store is the contexts file. Every mutation is written through to disk.
type Store struct {
	path string
	data file
}

// NewStore opens the contexts file. A missing file is an empty store.
func NewStore() (*Store, error) {
	s := &Store{
		path: filepath.Join(config.GetConfigDir(), FileName),
		data: file{Contexts: make(map[string]*Context)},
	}

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read contexts file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("invalid contexts file %s: %w", s.path, err)
	}
	if s.data.Contexts == nil {
		s.data.Contexts = make(map[string]*Context)
	}
	return s, nil
}

// save replaces the file atomically so a crash never leaves a truncated
// token store behind.
func (s *Store) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, DirPermissions); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	raw, err := yaml.Marshal(&s.data)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".contexts-*.yaml")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(FilePermissions); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *Store) lookup(name string) (*Context, error) {
	ctx, ok := s.data.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContextNotFound, name)
	}
	return ctx, nil
}

func (s *Store) GetCurrentContext() (*Context, error) {
	if s.data.Current == "" {
		return nil, ErrNoCurrentContext
	}
	return s.lookup(s.data.Current)
}

func (s *Store) GetCurrentContextName() string {
	return s.data.Current
}

func (s *Store) GetContext(name string) (*Context, error) {
	return s.lookup(name)
}

// ListContexts returns the context names in sorted order.
func (s *Store) ListContexts() []string {
	names := make([]string, 0, len(s.data.Contexts))
	for name := range s.data.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetContext creates or replaces a context.
func (s *Store) SetContext(name string, ctx *Context) error {
	s.data.Contexts[name] = ctx
	return s.save()
}

func (s *Store) UseContext(name string) error {
	if _, err := s.lookup(name); err != nil {
		return err
	}
	s.data.Current = name
	return s.save()
}

// DeleteContext removes a context, unsetting it if it was current.
func (s *Store) DeleteContext(name string) error {
	if _, err := s.lookup(name); err != nil {
		return err
	}
	delete(s.data.Contexts, name)
	if s.data.Current == name {
		s.data.Current = ""
	}
	return s.save()
}

// ClearCurrentContext drops the token of the current context and keeps its
// server URL for the next login.
func (s *Store) ClearCurrentContext() error {
	ctx, err := s.GetCurrentContext()
	if err != nil {
		return err
	}
	ctx.Token = ""
	ctx.ExpiresAt = time.Time{}
	return s.save()
}

func (s *Store) ConfigPath() string {
	return s.path
}

// GenerateContextName derives a context name from a server URL: the host
// with dots and colons replaced, or "default" when the URL has no host.
func GenerateContextName(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" {
		return "default"
	}
	return strings.NewReplacer(".", "-", ":", "-").Replace(u.Host)
}
