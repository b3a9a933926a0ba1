package automirror

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/go-units"
	"github.com/pkg/errors"

	"github.com/PlanktoScope/automirror/internal/clients/cli"
	"github.com/PlanktoScope/automirror/internal/clients/git"
	"github.com/PlanktoScope/automirror/internal/clients/pgp"
	"github.com/PlanktoScope/automirror/pkg/archives"
	"github.com/PlanktoScope/automirror/pkg/fs"
	"github.com/PlanktoScope/automirror/pkg/versioning"
)

// Fetcher downloads files from the release directory of a mirror.
type Fetcher interface {
	Download(filename string, w io.Writer) (int64, error)
}

// Verifier checks detached signatures against a set of trusted keys.
type Verifier interface {
	VerifyDetached(signed, signature io.Reader) (pgp.Verification, error)
}

// Applier applies a release artifact to the repository.
type Applier interface {
	Apply(ctx context.Context, indent int, fetcher Fetcher, artifact Artifact) error
}

// Pipeline applies release artifacts to a repository, one at a time, by downloading and verifying
// each artifact and then replacing the repository's worktree with the artifact's contents and
// recording the result as a tagged commit.
type Pipeline struct {
	Repo     *git.Repo
	Verifier Verifier
	// Preserve lists glob patterns of worktree paths which are kept when the worktree is replaced.
	Preserve []string
	Author   Identity
	// TempDir is the directory in which temporary download directories are made. If empty, the
	// default directory for temporary files is used.
	TempDir string
	Out     io.Writer
	// Now returns the time recorded in commits and tags. If nil, the current time is used.
	Now func() time.Time
}

// CommitMessage returns the message of the commit which records a release.
func CommitMessage(v versioning.Version) string {
	return "LibreSSL " + v.Tag()
}

// TagMessage returns the message of the annotated tag which marks a release.
func TagMessage(v versioning.Version) string {
	return "Version " + v.Tag()
}

// Apply downloads the artifact and its signature with the fetcher, verifies the signature, and
// records the artifact's contents as a new commit tagged with the artifact's version. The worktree
// is only changed after the signature has been verified; if replacing the worktree or recording
// the commit fails, the repository is reset to its previous commit. Downloaded files are always
// removed.
func (p *Pipeline) Apply(ctx context.Context, indent int, fetcher Fetcher, artifact Artifact) error {
	cli.IndentedFprintf(indent, p.Out, "Applying release %s from %s...\n", artifact.Version, artifact.Mirror)
	indent++

	head, err := p.Repo.Head()
	if err != nil {
		return &RepositoryError{Op: "resolve current commit", Err: err}
	}

	downloadDir, err := os.MkdirTemp(p.TempDir, "automirror-")
	if err != nil {
		return errors.Wrap(err, "couldn't make temporary directory for downloads")
	}
	defer func() {
		if err := os.RemoveAll(downloadDir); err != nil {
			cli.Warnf(indent, p.Out, "couldn't remove temporary directory %s: %s", downloadDir, err)
		}
	}()

	archivePath := filepath.Join(downloadDir, artifact.Filename)
	if err = p.download(ctx, indent, fetcher, artifact, artifact.Filename, archivePath); err != nil {
		return err
	}
	signaturePath := filepath.Join(downloadDir, artifact.SignatureFilename())
	if err = p.download(
		ctx, indent, fetcher, artifact, artifact.SignatureFilename(), signaturePath,
	); err != nil {
		return err
	}

	if err = p.verify(indent, artifact, archivePath, signaturePath); err != nil {
		return err
	}

	if err = p.replaceWorktree(indent, archivePath); err != nil {
		return &ExtractionError{Version: artifact.Version, Err: err, RollbackErr: p.rollback(head)}
	}
	return p.record(indent, head, artifact.Version)
}

func (p *Pipeline) download(
	ctx context.Context, indent int, fetcher Fetcher, artifact Artifact, filename, outputPath string,
) error {
	if err := ctx.Err(); err != nil {
		return &FetchError{Mirror: artifact.Mirror, Filename: filename, Err: err}
	}
	cli.IndentedFprintf(indent, p.Out, "Downloading %s...\n", filename)
	file, err := os.Create(filepath.Clean(outputPath))
	if err != nil {
		return errors.Wrapf(err, "couldn't create file %s", outputPath)
	}
	n, err := fetcher.Download(filename, file)
	if cerr := file.Close(); cerr != nil && err == nil {
		return errors.Wrapf(cerr, "couldn't close file %s", outputPath)
	}
	if err != nil {
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) {
			return err
		}
		return &FetchError{Mirror: artifact.Mirror, Filename: filename, Err: err}
	}
	cli.IndentedFprintf(indent+1, p.Out, "Downloaded %s\n", units.HumanSize(float64(n)))
	return nil
}

func (p *Pipeline) verify(indent int, artifact Artifact, archivePath, signaturePath string) error {
	cli.IndentedFprintf(indent, p.Out, "Verifying signature of %s...\n", artifact.Filename)
	archiveFile, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return errors.Wrapf(err, "couldn't open downloaded archive %s", archivePath)
	}
	defer func() {
		_ = archiveFile.Close()
	}()
	signatureFile, err := os.Open(filepath.Clean(signaturePath))
	if err != nil {
		return errors.Wrapf(err, "couldn't open downloaded signature %s", signaturePath)
	}
	defer func() {
		_ = signatureFile.Close()
	}()

	verification, err := p.Verifier.VerifyDetached(archiveFile, signatureFile)
	if err != nil {
		return &AuthenticationError{Filename: artifact.Filename, Version: artifact.Version, Err: err}
	}
	cli.IndentedFprintln(indent+1, p.Out, verification)
	return nil
}

func (p *Pipeline) replaceWorktree(indent int, archivePath string) error {
	root := p.Repo.Root()
	cli.IndentedFprintf(indent, p.Out, "Replacing worktree contents of %s...\n", root)
	if err := fs.ClearDir(root, p.Preserve); err != nil {
		return errors.Wrapf(err, "couldn't clear worktree %s", root)
	}
	stats, err := archives.ExtractFile(archivePath, root)
	if err != nil {
		return err
	}
	cli.IndentedFprintf(
		indent+1, p.Out, "Extracted %d files, %d directories, and %d links from %s/\n",
		stats.Files, stats.Dirs, stats.Links, stats.Root,
	)
	return p.Repo.StageAll()
}

func (p *Pipeline) record(indent int, head git.Hash, v versioning.Version) error {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}
	signature := git.Signature{Name: p.Author.Name, Email: p.Author.Email, When: now}

	commit, err := p.Repo.Commit(CommitMessage(v), signature)
	if err != nil {
		return &RepositoryError{Op: "commit release " + v.String(), Err: err, RollbackErr: p.rollback(head)}
	}
	if err = p.Repo.CreateTag(v.Tag(), commit, TagMessage(v), signature); err != nil {
		return &RepositoryError{Op: "tag release " + v.String(), Err: err, RollbackErr: p.rollback(head)}
	}
	cli.IndentedFprintf(
		indent, p.Out, "Committed %s as %s and tagged it %s\n", v, git.AbbreviateHash(commit), v.Tag(),
	)
	return nil
}

// rollback restores the worktree, the index, and the current branch to the commit.
func (p *Pipeline) rollback(head git.Hash) error {
	return p.Repo.ResetHard(head)
}
