package automirror

import (
	"time"
)

// Identity is the name and email address recorded as the author of commits and tags.
type Identity struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// Config holds the settings of a sync run. It's constructed once at startup and passed to each
// component which needs it.
type Config struct {
	// RepoPath is the path of the local git repository which mirrors the release series.
	RepoPath string
	// TLSOnly restricts the mirror pool to mirrors which support explicit FTPS.
	TLSOnly bool
	// KeyringPath is the path of the keyring of public keys trusted to sign releases.
	KeyringPath string
	// Remote is the name of the git remote which commits and tags are pushed to.
	Remote string
	// Branch is the name of the branch which commits are made on and pushed. It must be the branch
	// checked out in the repository.
	Branch string
	// Timeout bounds each network step, including how long a transfer may stall.
	Timeout time.Duration
	// Seed determines the order in which mirrors are tried.
	Seed uint64
	// NoPush disables pushing new commits and tags to the remote.
	NoPush bool
	// DryRun lists new releases without downloading them or changing the repository.
	DryRun bool
	// Author is recorded as the author and committer of new commits, and the tagger of new tags.
	Author Identity
	// Mirrors is the pool of mirrors to search for new releases.
	Mirrors []Mirror
	// Preserve is a list of glob patterns of paths in the repository which are kept when the
	// worktree is replaced with the contents of a release.
	Preserve []string
	// ArchivePrefix is the filename prefix of release archives.
	ArchivePrefix string
}

// FileConfig is the configuration which may be loaded from a YAML file. Zero-valued fields don't
// override other configuration.
type FileConfig struct {
	// RepoPath is the path of the local git repository.
	RepoPath string `yaml:"git-repo,omitempty"`
	// TLSOnly restricts the mirror pool to mirrors which support explicit FTPS.
	TLSOnly *bool `yaml:"tls-only,omitempty"`
	// KeyringPath is the path of the trusted keyring.
	KeyringPath string `yaml:"keyring,omitempty"`
	// Remote is the name of the git remote to push to.
	Remote string `yaml:"remote,omitempty"`
	// Branch is the name of the branch to commit on and push.
	Branch string `yaml:"branch,omitempty"`
	// Timeout is a duration string (e.g. "90s") bounding each network step.
	Timeout string `yaml:"timeout,omitempty"`
	// Seed determines the order in which mirrors are tried.
	Seed *uint64 `yaml:"seed,omitempty"`
	// NoPush disables pushing.
	NoPush *bool `yaml:"no-push,omitempty"`
	// Author overrides the identity recorded in commits and tags.
	Author Identity `yaml:"author,omitempty"`
	// Mirrors replaces the built-in list of mirrors.
	Mirrors []Mirror `yaml:"mirrors,omitempty"`
	// Preserve lists glob patterns of paths kept when the worktree is replaced.
	Preserve []string `yaml:"preserve,omitempty"`
	// ArchivePrefix is the filename prefix of release archives.
	ArchivePrefix string `yaml:"archive-prefix,omitempty"`
}
