package main

import (
	"log"
	"os"
	"runtime/debug"

	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v2"

	"github.com/PlanktoScope/automirror/internal/app/automirror"
)

func main() {
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

const envPrefix = "LSSLM_"

var app = &cli.App{
	Name:      "automirror",
	Version:   toolVersion,
	Usage:     "Mirrors new signed LibreSSL releases from FTP mirrors into a git repository",
	ArgsUsage: "[git-repo]",
	Action:    syncAction,
	Flags:     makeFlags(),
	Suggest:   true,
}

func makeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "git-repo",
			Usage:   "Path of the local git repository which mirrors LibreSSL releases",
			EnvVars: []string{envPrefix + "GIT_REPO"},
		},
		&cli.BoolFlag{
			Name:    "tls-only",
			Usage:   "Only use mirrors which support FTP over TLS",
			EnvVars: []string{envPrefix + "TLS_ONLY"},
		},
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path of a YAML file with additional settings, e.g. a list of mirrors",
			EnvVars: []string{envPrefix + "CONFIG"},
		},
		&cli.StringFlag{
			Name:    "keyring",
			Value:   automirror.DefaultKeyringPath,
			Usage:   "Path of the keyring of public keys trusted to sign releases",
			EnvVars: []string{envPrefix + "KEYRING"},
		},
		&cli.StringFlag{
			Name:    "remote",
			Value:   automirror.DefaultRemote,
			Usage:   "Name of the git remote to push new commits and tags to",
			EnvVars: []string{envPrefix + "REMOTE"},
		},
		&cli.StringFlag{
			Name:    "branch",
			Value:   automirror.DefaultBranch,
			Usage:   "Name of the git branch to commit new releases on",
			EnvVars: []string{envPrefix + "BRANCH"},
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Value:   automirror.DefaultTimeout,
			Usage:   "Maximum duration of each network step, including stalls during transfers",
			EnvVars: []string{envPrefix + "TIMEOUT"},
		},
		&cli.Uint64Flag{
			Name:        "seed",
			Usage:       "Seed for the order in which mirrors are tried",
			DefaultText: "time-based",
			EnvVars:     []string{envPrefix + "SEED"},
		},
		&cli.BoolFlag{
			Name:    "no-push",
			Usage:   "Don't push new commits and tags to the remote",
			EnvVars: []string{envPrefix + "NO_PUSH"},
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Only list new releases, without downloading them or changing the repository",
		},
		&cli.StringFlag{
			Name:    "author-name",
			Value:   automirror.DefaultAuthorName,
			Usage:   "Name recorded as the author of new commits and tags",
			EnvVars: []string{envPrefix + "AUTHOR_NAME"},
		},
		&cli.StringFlag{
			Name:    "author-email",
			Value:   automirror.DefaultAuthorEmail,
			Usage:   "Email address recorded as the author of new commits and tags",
			EnvVars: []string{envPrefix + "AUTHOR_EMAIL"},
		},
	}
}

// Versioning

// fallbackVersion is the version which the tool reports itself as if its actual version is
// unknown.
const fallbackVersion = "v0.1.0-dev"

var (
	toolVersion = determineVersion(buildSummary, fallbackVersion)
	// buildSummary should be overridden by ldflags, such as with GoReleaser's "Summary".
	buildSummary = ""
)

// determineVersion returns either a semver, a pseudoversion, or a Git hash based on information
// available from Go's `debug.ReadBuildInfo()`.
func determineVersion(override, fallback string) string {
	if override != "" {
		return override
	}

	const dirtySuffix = "-dirty"
	if info, ok := debug.ReadBuildInfo(); ok &&
		info.Main.Version != "" && info.Main.Version != "(devel)" {
		v := info.Main.Version
		if versioninfo.DirtyBuild {
			v += dirtySuffix
		}
		return v
	}
	if v := versioninfo.Version; v != "unknown" && v != "(devel)" {
		if versioninfo.DirtyBuild {
			v += dirtySuffix
		}
		return v
	}

	if r := versioninfo.Revision; r != "unknown" && r != "" {
		if versioninfo.DirtyBuild {
			r += dirtySuffix
		}
		return r
	}
	return fallback
}
