package automirror

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"github.com/PlanktoScope/automirror/pkg/fs"
	"github.com/PlanktoScope/automirror/pkg/structures"
	"github.com/PlanktoScope/automirror/pkg/versioning"
)

const (
	DefaultKeyringPath = "./libressl.gpg"
	DefaultRemote      = "origin"
	DefaultBranch      = "master"
	DefaultTimeout     = 2 * time.Minute
	DefaultAuthorName  = "LibreSSL Automirror"
	DefaultAuthorEmail = "automirror@localhost"
	// KeyringService is the OS keyring service under which mirror passwords are stored, keyed by
	// `<user>@<host>`.
	KeyringService = "automirror"
)

// DefaultConfig returns the built-in configuration. The mirror shuffle is seeded from the clock.
func DefaultConfig() Config {
	return Config{
		KeyringPath: DefaultKeyringPath,
		Remote:      DefaultRemote,
		Branch:      DefaultBranch,
		Timeout:     DefaultTimeout,
		Seed:        uint64(time.Now().UnixNano()), //nolint:gosec // UnixNano is positive
		Author: Identity{
			Name:  DefaultAuthorName,
			Email: DefaultAuthorEmail,
		},
		Mirrors:       DefaultMirrors(),
		ArchivePrefix: versioning.DefaultArchivePrefix,
	}
}

// FileConfig

// LoadFileConfig loads a FileConfig from the YAML file at the specified path.
func LoadFileConfig(filePath string) (FileConfig, error) {
	bytes, err := os.ReadFile(filepath.Clean(filePath))
	if err != nil {
		return FileConfig{}, &ConfigError{
			Key: "CONFIG", Err: errors.Wrapf(err, "couldn't read config file %s", filePath),
		}
	}
	config := FileConfig{}
	if err = yaml.Unmarshal(bytes, &config); err != nil {
		return FileConfig{}, &ConfigError{
			Key: "CONFIG", Err: errors.Wrapf(err, "couldn't parse config file %s", filePath),
		}
	}
	return config, nil
}

// Overlay returns a copy of c in which every setting provided by f replaces the corresponding
// setting of c.
func (c Config) Overlay(f FileConfig) (Config, error) {
	result := c
	if f.RepoPath != "" {
		result.RepoPath = f.RepoPath
	}
	if f.TLSOnly != nil {
		result.TLSOnly = *f.TLSOnly
	}
	if f.KeyringPath != "" {
		result.KeyringPath = f.KeyringPath
	}
	if f.Remote != "" {
		result.Remote = f.Remote
	}
	if f.Branch != "" {
		result.Branch = f.Branch
	}
	if f.Timeout != "" {
		timeout, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return c, &ConfigError{Key: "TIMEOUT", Err: errors.Wrapf(err, "invalid duration")}
		}
		result.Timeout = timeout
	}
	if f.Seed != nil {
		result.Seed = *f.Seed
	}
	if f.NoPush != nil {
		result.NoPush = *f.NoPush
	}
	if f.Author.Name != "" {
		result.Author.Name = f.Author.Name
	}
	if f.Author.Email != "" {
		result.Author.Email = f.Author.Email
	}
	if len(f.Mirrors) > 0 {
		result.Mirrors = f.Mirrors
	}
	if len(f.Preserve) > 0 {
		result.Preserve = f.Preserve
	}
	if f.ArchivePrefix != "" {
		result.ArchivePrefix = f.ArchivePrefix
	}
	return result, nil
}

// Validation

// Validate checks that the configuration can be used for a sync run.
func (c Config) Validate() error {
	if c.RepoPath == "" {
		return &ConfigError{Key: "GIT_REPO", Err: errors.New("path of git repository is required")}
	}
	if c.KeyringPath == "" {
		return &ConfigError{Key: "KEYRING", Err: errors.New("path of trusted keyring is required")}
	}
	if c.Remote == "" {
		return &ConfigError{Key: "REMOTE", Err: errors.New("remote name is required")}
	}
	if c.Branch == "" {
		return &ConfigError{Key: "BRANCH", Err: errors.New("branch name is required")}
	}
	if c.Timeout <= 0 {
		return &ConfigError{Key: "TIMEOUT", Err: errors.Errorf("timeout %s isn't positive", c.Timeout)}
	}
	if c.Author.Name == "" || c.Author.Email == "" {
		return &ConfigError{
			Key: "AUTHOR_NAME/AUTHOR_EMAIL", Err: errors.New("author name and email are required"),
		}
	}
	if err := fs.ValidatePatterns(c.Preserve); err != nil {
		return &ConfigError{Key: "preserve", Err: err}
	}
	return validateMirrors(c.Mirrors)
}

func validateMirrors(mirrors []Mirror) error {
	if len(mirrors) == 0 {
		return &ConfigError{Key: "mirrors", Err: errors.New("at least one mirror is required")}
	}
	ids := structures.NewSet[string]()
	for _, m := range mirrors {
		if m.Host == "" {
			return &ConfigError{Key: "mirrors", Err: errors.New("mirror has no host")}
		}
		if m.Path == "" {
			return &ConfigError{Key: "mirrors", Err: errors.Errorf("mirror %s has no path", m.Host)}
		}
		if ids.Has(m.ID()) {
			return &ConfigError{Key: "mirrors", Err: errors.Errorf("mirror %s is listed twice", m.ID())}
		}
		ids.Add(m.ID())

		if m.Credentials == nil {
			continue
		}
		if m.Credentials.User == "" {
			return &ConfigError{
				Key: "mirrors", Err: errors.Errorf("credentials for mirror %s have no user", m.Host),
			}
		}
		if m.Credentials.Account != "" {
			return &ConfigError{
				Key: "mirrors",
				Err: errors.Errorf(
					"credentials for mirror %s specify an account, but ACCT login isn't supported", m.Host,
				),
			}
		}
	}
	return nil
}

// Credentials

// ResolveCredentials returns a copy of c in which the password of every mirror credential marked
// for lookup in the OS keyring has been loaded from the keyring.
func (c Config) ResolveCredentials() (Config, error) {
	result := c
	result.Mirrors = make([]Mirror, 0, len(c.Mirrors))
	for _, m := range c.Mirrors {
		if m.Credentials == nil || !m.Credentials.Keyring {
			result.Mirrors = append(result.Mirrors, m)
			continue
		}
		key := m.Credentials.User + "@" + m.Host
		password, err := keyring.Get(KeyringService, key)
		if err != nil {
			return c, &ConfigError{
				Key: "mirrors",
				Err: errors.Wrapf(err, "couldn't look up password for %s in keyring service %s",
					key, KeyringService),
			}
		}
		credentials := *m.Credentials
		credentials.Password = password
		m.Credentials = &credentials
		result.Mirrors = append(result.Mirrors, m)
	}
	return result, nil
}
