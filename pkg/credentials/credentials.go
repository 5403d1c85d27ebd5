package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/parley/pkg/dotdir"
)

const (
	credentialsFile = "credentials.toml"

	currentVersion = 0
)

// DefaultProvider is the provider parley authenticates against.
const DefaultProvider = "openai"

// providerEnvVars maps provider names to the environment variables consulted,
// in order, before the credentials file.
var providerEnvVars = map[string][]string{
	"openai": {"OPENAI_KEY", "OPENAI_API_KEY"},
}

// ErrNoAPIKey is returned by ResolveAPIKey when no source holds a key.
var ErrNoAPIKey = errors.New("no API key configured")

// Manager manages reading and writing credentials.toml in the .parley/ directory.
type Manager struct {
	ddm        *dotdir.Manager
	targetPath string
}

// NewManager creates a new credentials Manager. If override is non-empty it is
// used as the .parley/ directory; otherwise the standard dotdir resolution applies.
// When no .parley/ directory is found, one is created at ~/.parley/.
func NewManager(override string) (*Manager, error) {
	mgr := &Manager{}
	mgr.ddm = dotdir.NewManager()

	target, err := mgr.ddm.Ensure(override)
	if err != nil {
		return nil, fmt.Errorf("resolving parley dir: %w", err)
	}

	mgr.targetPath = filepath.Join(target, credentialsFile)

	return mgr, nil
}

// Load reads credentials.toml from the target directory.
// Returns an empty Credentials if the file does not exist.
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Credentials{
				Version:   currentVersion,
				Providers: make(map[string]ProviderCredential),
			}, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	creds := &Credentials{}
	if err := toml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	if creds.Providers == nil {
		creds.Providers = make(map[string]ProviderCredential)
	}

	return creds, nil
}

// Save writes credentials to credentials.toml with 0600 permissions.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := os.WriteFile(m.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}

	return nil
}

// SetKey stores an API key for the given provider.
func (m *Manager) SetKey(provider, key string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	creds.Providers[provider] = ProviderCredential{APIKey: key}

	return m.Save(creds)
}

// GetKey returns the stored API key for the given provider.
// Returns an empty string if no key is stored.
func (m *Manager) GetKey(provider string) (string, error) {
	creds, err := m.Load()
	if err != nil {
		return "", err
	}

	pc, ok := creds.Providers[provider]
	if !ok {
		return "", nil
	}

	return pc.APIKey, nil
}

// RemoveKey deletes the stored credential for a provider.
func (m *Manager) RemoveKey(provider string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	delete(creds.Providers, provider)

	return m.Save(creds)
}

// ListProviders returns the names of providers that have stored credentials.
func (m *Manager) ListProviders() ([]string, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}

	providers := make([]string, 0, len(creds.Providers))
	for name := range creds.Providers {
		providers = append(providers, name)
	}

	sort.Strings(providers)

	return providers, nil
}

// GetTarget returns the resolved path to the credentials file.
func (m *Manager) GetTarget() string {
	return m.targetPath
}

// ResolveAPIKey returns the key for provider and a description of where it
// came from. Environment variables win over the credentials file. It returns
// ErrNoAPIKey when no source has a non-blank key.
func (m *Manager) ResolveAPIKey(provider string) (key string, source string, err error) {
	for _, env := range providerEnvVars[provider] {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v, "env " + env, nil
		}
	}

	key, err = m.GetKey(provider)
	if err != nil {
		return "", "", err
	}
	if key = strings.TrimSpace(key); key != "" {
		return key, m.targetPath, nil
	}

	return "", "", fmt.Errorf("%w for %s: set %s or run \"parley auth %s\"",
		ErrNoAPIKey, provider, strings.Join(EnvVarsForProvider(provider), " or "), provider)
}

// EnvVarForProvider returns the preferred environment variable for a provider.
// Returns an empty string for unknown providers.
func EnvVarForProvider(provider string) string {
	vars := providerEnvVars[provider]
	if len(vars) == 0 {
		return ""
	}
	return vars[len(vars)-1]
}

// EnvVarsForProvider returns every environment variable consulted for a
// provider, in lookup order.
func EnvVarsForProvider(provider string) []string {
	return slices.Clone(providerEnvVars[provider])
}

// SupportedProviders returns the list of providers that require API keys.
func SupportedProviders() []string {
	return []string{DefaultProvider}
}

// IsSupportedProvider returns true if the given provider is supported.
func IsSupportedProvider(provider string) bool {
	return slices.Contains(SupportedProviders(), provider)
}
