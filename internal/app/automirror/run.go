// Package automirror keeps a git repository synchronized with the newest signed LibreSSL release
// published on a pool of FTP mirrors.
package automirror

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/PlanktoScope/automirror/internal/clients/cli"
	"github.com/PlanktoScope/automirror/internal/clients/git"
	"github.com/PlanktoScope/automirror/internal/clients/pgp"
	"github.com/PlanktoScope/automirror/pkg/fs"
	"github.com/PlanktoScope/automirror/pkg/versioning"
)

// Report summarizes a sync run.
type Report struct {
	// Baseline is the highest release version which was already in the repository.
	Baseline versioning.Version
	// MirrorsTried lists the mirrors which were drawn, in the order they were tried.
	MirrorsTried []Mirror
	// Found lists the new releases which were found on the mirror which was used.
	Found []Artifact
	// Applied lists the versions which were committed and tagged.
	Applied []versioning.Version
	// Pushed indicates whether new commits and tags were pushed to the remote.
	Pushed bool
}

// Runner runs a sync with its collaborators.
type Runner struct {
	Config    Config
	Transport Transport
	Out       io.Writer
	Err       io.Writer
}

// NewRunner makes a Runner which connects to mirrors over FTP.
func NewRunner(config Config, out, errOut io.Writer) *Runner {
	return &Runner{
		Config:    config,
		Transport: FTPTransport{Timeout: config.Timeout},
		Out:       out,
		Err:       errOut,
	}
}

// Run determines the current baseline from the repository's tags, searches the mirror pool for
// newer releases, applies them, and publishes the result.
func (r *Runner) Run(ctx context.Context) (report Report, err error) {
	config := r.Config
	if err = config.Validate(); err != nil {
		return report, err
	}
	if config.TLSOnly {
		cli.IndentedFprintln(0, r.Out, "Only using mirrors which support TLS")
	}

	cli.IndentedFprintf(0, r.Out, "Using repository %s\n", config.RepoPath)
	if !fs.DirExists(config.RepoPath) {
		return report, &ConfigError{
			Key: "GIT_REPO", Err: errors.Errorf("%s isn't a directory", config.RepoPath),
		}
	}
	repo, err := git.Open(config.RepoPath)
	if err != nil {
		return report, &RepositoryError{Op: "open repository", Err: err}
	}
	branch, err := repo.CurrentBranch()
	if err != nil {
		return report, &RepositoryError{Op: "determine checked-out branch", Err: err}
	}
	if branch != config.Branch {
		return report, &ConfigError{Key: "BRANCH", Err: errors.Errorf(
			"repository has %s checked out, but new releases must be committed on %s",
			branch, config.Branch,
		)}
	}
	if report.Baseline, err = CurrentBaseline(repo); err != nil {
		return report, err
	}
	cli.IndentedFprintf(0, r.Out, "Current version: %s\n", report.Baseline)

	verifier, err := pgp.LoadKeyring(config.KeyringPath)
	if err != nil {
		return report, &ConfigError{Key: "KEYRING", Err: err}
	}

	controller := &Controller{
		Pool: NewMirrorPool(config.Mirrors, NewSeededRand(config.Seed)).
			FilterBySecurity(config.TLSOnly),
		Catalog: &Catalog{
			Transport: r.Transport,
			Naming:    versioning.NewArchiveNaming(config.ArchivePrefix),
			Out:       r.Out,
		},
		Applier: &Pipeline{
			Repo:     repo,
			Verifier: verifier,
			Preserve: config.Preserve,
			Author:   config.Author,
			Out:      r.Out,
		},
		DryRun: config.DryRun,
		Out:    r.Out,
	}
	if controller.Pool.Len() == 0 {
		cli.Warnf(0, r.Err, "no mirrors are available with the current settings")
	}
	outcome, err := controller.Run(ctx, 0, report.Baseline)
	report.MirrorsTried = outcome.MirrorsTried
	report.Found = outcome.Found
	report.Applied = outcome.Applied
	if err != nil {
		return report, err
	}

	gate := &PublishGate{
		Repo:     repo,
		Remote:   config.Remote,
		Branch:   config.Branch,
		Timeout:  config.Timeout,
		Disabled: config.NoPush || config.DryRun,
		Out:      r.Out,
		Err:      r.Err,
	}
	report.Pushed = gate.Publish(ctx, 0, len(report.Applied))

	if config.DryRun {
		cli.IndentedFprintf(
			0, r.Out, "Done: found %d new release(s) above %s, none applied in a dry run\n",
			len(report.Found), report.Baseline,
		)
		return report, nil
	}
	if len(report.Applied) == 0 {
		cli.IndentedFprintf(0, r.Out, "Done: already up-to-date at %s\n", report.Baseline)
		return report, nil
	}
	cli.IndentedFprintf(
		0, r.Out, "Done: applied %d release(s), now at %s\n",
		len(report.Applied), report.Applied[len(report.Applied)-1],
	)
	return report, nil
}
