// Package archives extracts release tarballs into directory trees.
package archives

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/h2non/filetype"
	ftt "github.com/h2non/filetype/types"
	"github.com/pkg/errors"

	ffs "github.com/PlanktoScope/automirror/pkg/fs"
)

// Stats summarizes what was extracted from an archive.
type Stats struct {
	// Root is the top-level directory which was stripped from every entry.
	Root  string
	Files int
	Dirs  int
	Links int
}

// DetectType determines the file type of the archive at archivePath from its contents.
func DetectType(archivePath string) (ftt.Type, error) {
	archiveFile, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return filetype.Unknown, errors.Wrapf(err, "couldn't open archive %s", archivePath)
	}
	defer func() {
		_ = archiveFile.Close()
	}()
	return filetype.MatchReader(archiveFile)
}

// ExtractFile extracts the (optionally gzip-compressed) tar archive at archivePath into destDir,
// which must already exist. The archive must wrap all of its contents in a single top-level
// directory; that directory is stripped, so its contents end up directly in destDir.
func ExtractFile(archivePath, destDir string) (Stats, error) {
	kind, err := DetectType(archivePath)
	if err != nil {
		return Stats{}, errors.Wrapf(err, "couldn't determine file type of archive %s", archivePath)
	}

	archiveFile, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return Stats{}, errors.Wrapf(err, "couldn't open archive %s", archivePath)
	}
	defer func() {
		if err := archiveFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: couldn't close archive %s\n", archivePath)
		}
	}()

	var archiveReader *tar.Reader
	switch kind.MIME.Value {
	case "application/x-tar":
		archiveReader = tar.NewReader(archiveFile)
	case "application/gzip":
		uncompressed, err := gzip.NewReader(archiveFile)
		if err != nil {
			return Stats{}, errors.Wrapf(err, "couldn't create a gzip decompressor for %s", archivePath)
		}
		defer func() {
			_ = uncompressed.Close()
		}()
		archiveReader = tar.NewReader(uncompressed)
	default:
		return Stats{}, errors.Errorf(
			"unrecognized archive file type of %s: %s (.%s)",
			archivePath, kind.MIME.Value, kind.Extension,
		)
	}

	stats, err := Extract(archiveReader, destDir)
	if err != nil {
		return stats, errors.Wrapf(err, "couldn't extract %s to %s", archivePath, destDir)
	}
	return stats, nil
}

// Extract extracts every entry of the tar stream into destDir after stripping the single
// top-level directory which wraps the archive's contents.
func Extract(tarReader *tar.Reader, destDir string) (stats Stats, err error) {
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, errors.Wrap(err, "couldn't read next archive entry")
		}
		if header.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		root, rel, err := splitRoot(header.Name)
		if err != nil {
			return stats, err
		}
		if stats.Root == "" {
			stats.Root = root
		} else if root != stats.Root {
			return stats, errors.Errorf(
				"archive has more than one top-level entry: %s and %s", stats.Root, root,
			)
		}
		if rel == "" {
			// the top-level directory itself
			continue
		}
		if inGitDir(rel) {
			return stats, errors.Errorf(
				"archive entry %s would overwrite git metadata in %s", header.Name, destDir,
			)
		}

		if err = extractEntry(header, tarReader, rel, destDir, &stats); err != nil {
			return stats, err
		}
	}
	if stats.Root == "" {
		return stats, errors.New("archive is empty")
	}
	return stats, nil
}

// inGitDir reports whether the slash-separated relative path is the git metadata directory or
// something inside it. Case is ignored, since some filesystems ignore it too.
func inGitDir(rel string) bool {
	first, _, _ := strings.Cut(rel, "/")
	return strings.EqualFold(first, ffs.GitDirName)
}

// splitRoot splits a tar entry name into its top-level path component and the rest of the path.
func splitRoot(name string) (root, rel string, err error) {
	cleaned := path.Clean(strings.TrimPrefix(name, "./"))
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", "", errors.Errorf("archive entry %s points outside of the archive", name)
	}
	if cleaned == "." {
		return "", "", errors.Errorf("archive entry %s has no top-level directory", name)
	}
	root, rel, _ = strings.Cut(cleaned, "/")
	return root, rel, nil
}

func extractEntry(
	header *tar.Header, tarReader *tar.Reader, rel, destDir string, stats *Stats,
) error {
	targetPath, err := securejoin.SecureJoin(destDir, filepath.FromSlash(rel))
	if err != nil {
		return errors.Wrapf(err, "couldn't resolve extraction path of %s", header.Name)
	}
	// Symlinks extracted earlier could otherwise redirect this entry into the git metadata
	if resolved, err := filepath.Rel(destDir, targetPath); err != nil ||
		inGitDir(filepath.ToSlash(resolved)) {
		return errors.Errorf(
			"archive entry %s resolves into the git metadata of %s", header.Name, destDir,
		)
	}
	switch header.Typeflag {
	default:
		return errors.Errorf("unknown type of file %s in archive: %b", header.Name, header.Typeflag)
	case tar.TypeDir:
		if err := ffs.EnsureExists(targetPath); err != nil {
			return errors.Wrapf(err, "couldn't extract directory %s to %s", header.Name, targetPath)
		}
		stats.Dirs++
	case tar.TypeReg, tar.TypeRegA: //nolint:staticcheck // old tar writers still emit TypeRegA
		if err := extractRegularFile(header, tarReader, targetPath); err != nil {
			return errors.Wrapf(err, "couldn't extract regular file %s to %s", header.Name, targetPath)
		}
		stats.Files++
	case tar.TypeSymlink:
		if err := prepareTarget(targetPath); err != nil {
			return err
		}
		if err := os.Symlink(filepath.FromSlash(header.Linkname), targetPath); err != nil {
			return errors.Wrapf(err, "couldn't extract symlink %s to %s", header.Name, targetPath)
		}
		stats.Links++
	case tar.TypeLink:
		_, linkRel, err := splitRoot(header.Linkname)
		if err != nil {
			return err
		}
		linkTarget, err := securejoin.SecureJoin(destDir, filepath.FromSlash(linkRel))
		if err != nil {
			return errors.Wrapf(err, "couldn't resolve hardlink target of %s", header.Name)
		}
		if resolved, err := filepath.Rel(destDir, linkTarget); err != nil ||
			inGitDir(filepath.ToSlash(resolved)) {
			return errors.Errorf("hardlink %s points into git metadata", header.Name)
		}
		if err := prepareTarget(targetPath); err != nil {
			return err
		}
		if err := os.Link(linkTarget, targetPath); err != nil {
			return errors.Wrapf(err, "couldn't extract hardlink %s to %s", header.Name, targetPath)
		}
		stats.Links++
	}
	return nil
}

// prepareTarget ensures the parent directory of targetPath exists and that nothing is at
// targetPath itself.
func prepareTarget(targetPath string) error {
	if err := ffs.EnsureExists(filepath.Dir(targetPath)); err != nil {
		return errors.Wrapf(err, "couldn't make parent directory of %s", targetPath)
	}
	if err := os.Remove(targetPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(err, "couldn't replace existing file at %s", targetPath)
	}
	return nil
}

func extractRegularFile(header *tar.Header, tarReader *tar.Reader, targetPath string) error {
	if err := ffs.EnsureExists(filepath.Dir(targetPath)); err != nil {
		return errors.Wrapf(err, "couldn't make parent directory of %s", targetPath)
	}
	perms := fs.FileMode( //nolint:gosec // (G115) tar's Mode won't overflow fs.FileMode
		header.Mode,
	) & fs.ModePerm
	targetFile, err := os.OpenFile(
		filepath.Clean(targetPath), os.O_RDWR|os.O_CREATE|os.O_TRUNC, perms,
	)
	if err != nil {
		return errors.Wrapf(err, "couldn't create file at %s", targetPath)
	}
	if _, err = io.Copy(targetFile, tarReader); err != nil { //nolint:gosec // archive is verified
		_ = targetFile.Close()
		return errors.Wrapf(err, "couldn't copy %s from archive to %s", header.Name, targetPath)
	}
	if err = targetFile.Close(); err != nil {
		return errors.Wrapf(err, "couldn't close %s", targetPath)
	}
	// OpenFile's permissions are filtered by the umask, and aren't applied to existing files
	return errors.Wrapf(os.Chmod(targetPath, perms), "couldn't set permissions of %s", targetPath)
}
