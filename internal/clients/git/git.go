// Package git simplifies git operations
package git

import (
	"context"
	"io"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pkg/errors"

	"github.com/PlanktoScope/automirror/internal/clients/cli"
)

func AbbreviateHash(h plumbing.Hash) string {
	const shortHashLength = 7
	return h.String()[:shortHashLength]
}

// Hash identifies a git object.
type Hash = plumbing.Hash

// Signature identifies the author, committer, or tagger of a git object.
type Signature = object.Signature

type Repo struct {
	repository *git.Repository
	worktree   *git.Worktree
}

// Init initializes an empty non-bare git repository at local.
func Init(local string) error {
	if _, err := git.PlainInit(local, false); err != nil {
		return errors.Wrapf(err, "couldn't initialize git repo at %s", local)
	}
	return nil
}

// Open opens the non-bare git repository whose worktree is at local.
func Open(local string) (*Repo, error) {
	repo, err := git.PlainOpen(local)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't open git repo at %s", local)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't open worktree of git repo at %s", local)
	}
	return &Repo{
		repository: repo,
		worktree:   worktree,
	}, nil
}

// Root returns the path of the repository's worktree.
func (r *Repo) Root() string {
	return r.worktree.Filesystem.Root()
}

// Head returns the hash of the commit currently checked out.
func (r *Repo) Head() (plumbing.Hash, error) {
	ref, err := r.repository.Head()
	if err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "couldn't resolve HEAD")
	}
	return ref.Hash(), nil
}

// CurrentBranch returns the short name of the branch which HEAD points to. It's an error if HEAD
// is detached.
func (r *Repo) CurrentBranch() (string, error) {
	ref, err := r.repository.Head()
	if err != nil {
		return "", errors.Wrap(err, "couldn't resolve HEAD")
	}
	if !ref.Name().IsBranch() {
		return "", errors.Errorf("HEAD is detached at %s", AbbreviateHash(ref.Hash()))
	}
	return ref.Name().Short(), nil
}

// Tags

type Tag struct {
	Name string
	Hash plumbing.Hash
}

func (t Tag) GetName() string {
	return t.Name
}

// Tags lists all tags in the repository.
func (r *Repo) Tags() ([]Tag, error) {
	iter, err := r.repository.Tags()
	if err != nil {
		return nil, errors.Wrap(err, "couldn't list tags")
	}
	defer iter.Close()

	tags := make([]Tag, 0)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		tags = append(tags, Tag{
			Name: strings.TrimPrefix(string(ref.Name()), "refs/tags/"),
			Hash: ref.Hash(),
		})
		return nil
	})
	return tags, errors.Wrap(err, "couldn't iterate over tags")
}

// CreateTag creates an annotated tag pointing at the commit.
func (r *Repo) CreateTag(name string, commit plumbing.Hash, message string, tagger Signature) error {
	if _, err := r.repository.CreateTag(name, commit, &git.CreateTagOptions{
		Tagger:  &tagger,
		Message: message,
	}); err != nil {
		return errors.Wrapf(err, "couldn't create tag %s at %s", name, AbbreviateHash(commit))
	}
	return nil
}

// Worktree changes

// StageAll stages every change in the worktree, including deletions of tracked files.
func (r *Repo) StageAll() error {
	if err := r.worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return errors.Wrap(err, "couldn't stage changes in worktree")
	}
	return nil
}

// Commit records the staged changes as a new commit on the current branch. The commit is made
// even if nothing changed, so that every release gets its own commit.
func (r *Repo) Commit(message string, author Signature) (plumbing.Hash, error) {
	hash, err := r.worktree.Commit(message, &git.CommitOptions{
		Author:            &author,
		Committer:         &author,
		AllowEmptyCommits: true,
	})
	if err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "couldn't commit staged changes")
	}
	return hash, nil
}

// ResetHard resets the current branch, the index, and the worktree to the commit, and removes
// all untracked files and directories.
func (r *Repo) ResetHard(commit plumbing.Hash) error {
	if err := r.worktree.Reset(&git.ResetOptions{
		Commit: commit,
		Mode:   git.HardReset,
	}); err != nil {
		return errors.Wrapf(err, "couldn't hard-reset worktree to %s", AbbreviateHash(commit))
	}
	if err := r.worktree.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return errors.Wrap(err, "couldn't remove untracked files from worktree")
	}
	return nil
}

// Remotes

// PushBranchAndTags pushes the branch and all tags to the remote. It's not an error if the remote
// is already up-to-date.
func (r *Repo) PushBranchAndTags(
	ctx context.Context, indent int, remote, branch string, progress io.Writer,
) (updated bool, err error) {
	branchRef := plumbing.NewBranchReferenceName(branch)
	options := &git.PushOptions{
		RemoteName: remote,
		RefSpecs: []config.RefSpec{
			config.RefSpec(branchRef + ":" + branchRef),
			"refs/tags/*:refs/tags/*",
		},
	}
	if progress != nil {
		options.Progress = cli.NewIndentedWriter(indent, progress)
	}
	if err = r.repository.PushContext(ctx, options); err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			return false, nil
		}
		return false, errors.Wrapf(err, "couldn't push %s and tags to %s", branch, remote)
	}
	return true, nil
}
