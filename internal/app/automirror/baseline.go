package automirror

import (
	"github.com/PlanktoScope/automirror/internal/clients/git"
	"github.com/PlanktoScope/automirror/pkg/versioning"
)

// TagLister lists the tags of a repository.
type TagLister interface {
	Tags() ([]git.Tag, error)
}

// CurrentBaseline returns the highest release version among the tags of the repository. Every tag
// must be a release tag of the form `v<version>`; any other tag is reported as a
// [*RepositoryError], since a baseline computed while ignoring it might be wrong. If the repository
// has no tags, [ErrNoTagsFound] is returned.
func CurrentBaseline(repo TagLister) (versioning.Version, error) {
	tags, err := repo.Tags()
	if err != nil {
		return versioning.Version{}, &RepositoryError{Op: "list tags", Err: err}
	}
	if len(tags) == 0 {
		return versioning.Version{}, ErrNoTagsFound
	}

	versions := make([]versioning.Version, 0, len(tags))
	for _, tag := range tags {
		v, err := versioning.ParseTag(tag.Name)
		if err != nil {
			return versioning.Version{}, &RepositoryError{Op: "parse release tag", Err: err}
		}
		versions = append(versions, v)
	}
	return versioning.Max(versions...), nil
}
