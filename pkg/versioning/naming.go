package versioning

import (
	"regexp"

	"github.com/pkg/errors"
)

// TagPrefix is the prefix of every release tag name.
const TagPrefix = "v"

var tagRe = regexp.MustCompile(`^` + regexp.QuoteMeta(TagPrefix) + `(` + NumericPattern + `)$`)

// ParseTag parses the version out of a release tag name of the form `v<version>`.
func ParseTag(name string) (Version, error) {
	match := tagRe.FindStringSubmatch(name)
	if match == nil {
		return Version{}, errors.Errorf(
			"tag %q doesn't match the release tag pattern %s<version>", name, TagPrefix,
		)
	}
	return Parse(match[1])
}

// Release archive naming

const (
	// DefaultArchivePrefix is the prefix of LibreSSL release archive filenames.
	DefaultArchivePrefix = "libressl-"
	// ArchiveSuffix is the suffix of every release archive filename.
	ArchiveSuffix = ".tar.gz"
	// SignatureSuffix is appended to an archive filename to name its detached signature.
	SignatureSuffix = ".asc"
)

// ArchiveNaming describes the filename grammar of release archives: `<prefix><version>.tar.gz`.
type ArchiveNaming struct {
	re     *regexp.Regexp
	prefix string
}

// NewArchiveNaming makes an ArchiveNaming for archives whose names begin with the prefix. An
// empty prefix selects [DefaultArchivePrefix].
func NewArchiveNaming(prefix string) ArchiveNaming {
	if prefix == "" {
		prefix = DefaultArchivePrefix
	}
	return ArchiveNaming{
		re: regexp.MustCompile(
			`^` + regexp.QuoteMeta(prefix) + `(` + NumericPattern + `)` +
				regexp.QuoteMeta(ArchiveSuffix) + `$`,
		),
		prefix: prefix,
	}
}

// Prefix returns the filename prefix of release archives.
func (n ArchiveNaming) Prefix() string {
	return n.prefix
}

// Parse returns the version of the release archive with the given filename. The result is false
// if the filename isn't a release archive name.
func (n ArchiveNaming) Parse(filename string) (Version, bool) {
	if n.re == nil {
		n = NewArchiveNaming("")
	}
	match := n.re.FindStringSubmatch(filename)
	if match == nil {
		return Version{}, false
	}
	v, err := Parse(match[1])
	if err != nil {
		return Version{}, false
	}
	return v, true
}

// Filename returns the release archive filename for the version.
func (n ArchiveNaming) Filename(v Version) string {
	prefix := n.prefix
	if prefix == "" {
		prefix = DefaultArchivePrefix
	}
	return prefix + v.String() + ArchiveSuffix
}

// SignatureFilename returns the filename of the detached signature of an archive.
func SignatureFilename(archiveFilename string) string {
	return archiveFilename + SignatureSuffix
}
