package automirror

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"maps"
	"net"
	"net/textproto"
	"os"
	"path/filepath"
	"slices"
	"syscall"
	"testing"
	"time"

	"github.com/PlanktoScope/automirror/internal/clients/ftp"
	"github.com/PlanktoScope/automirror/internal/clients/git"
	"github.com/PlanktoScope/automirror/internal/testutil/pgptest"
	"github.com/PlanktoScope/automirror/pkg/versioning"
)

// Fake transport

type fakeMirror struct {
	files        map[string][]byte
	dirs         []string
	connectErr   error
	loginErr     error
	changeDirErr error
	listErr      error
	retrieveErrs map[string]error
}

type fakeTransport struct {
	mirrors  map[string]*fakeMirror
	connects []string
	logins   []string
	dirs     []string
	fetched  []string
	closed   int
}

func newFakeTransport(mirrors map[string]*fakeMirror) *fakeTransport {
	return &fakeTransport{mirrors: mirrors}
}

func (t *fakeTransport) Connect(_ context.Context, mirror Mirror) (Session, error) {
	t.connects = append(t.connects, mirror.Host)
	m, ok := t.mirrors[mirror.Host]
	if !ok {
		return nil, &net.OpError{
			Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED),
		}
	}
	if m.connectErr != nil {
		return nil, m.connectErr
	}
	return &fakeSession{transport: t, mirror: m}, nil
}

type fakeSession struct {
	transport *fakeTransport
	mirror    *fakeMirror
}

func (s *fakeSession) Login(user, _ string) error {
	s.transport.logins = append(s.transport.logins, user)
	return s.mirror.loginErr
}

func (s *fakeSession) ChangeDir(dir string) error {
	s.transport.dirs = append(s.transport.dirs, dir)
	return s.mirror.changeDirErr
}

func (s *fakeSession) List() ([]ftp.Entry, error) {
	if s.mirror.listErr != nil {
		return nil, s.mirror.listErr
	}
	entries := make([]ftp.Entry, 0, len(s.mirror.files)+len(s.mirror.dirs))
	for _, name := range slices.Sorted(maps.Keys(s.mirror.files)) {
		entries = append(entries, ftp.Entry{
			Name: name,
			Type: ftp.EntryTypeFile,
			Size: uint64(len(s.mirror.files[name])),
		})
	}
	for _, name := range s.mirror.dirs {
		entries = append(entries, ftp.Entry{Name: name, Type: ftp.EntryTypeDir})
	}
	return entries, nil
}

func (s *fakeSession) Retrieve(name string, w io.Writer) (int64, error) {
	if err := s.mirror.retrieveErrs[name]; err != nil {
		return 0, err
	}
	data, ok := s.mirror.files[name]
	if !ok {
		return 0, &textproto.Error{Code: 550, Msg: "Failed to open file."}
	}
	s.transport.fetched = append(s.transport.fetched, name)
	n, err := w.Write(data)
	return int64(n), err
}

func (s *fakeSession) Close() error {
	s.transport.closed++
	return nil
}

// Release fixtures

// makeRelease builds a gzip-compressed tarball which wraps a fake release in a single top-level
// directory.
func makeRelease(t *testing.T, version string) []byte {
	t.Helper()
	root := "libressl-" + version + "/"
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	modTime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	write := func(header *tar.Header, content string) {
		header.ModTime = modTime
		header.Size = int64(len(content))
		if err := tw.WriteHeader(header); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	write(&tar.Header{Name: root, Typeflag: tar.TypeDir, Mode: 0o755}, "")
	write(&tar.Header{Name: root + "VERSION", Typeflag: tar.TypeReg, Mode: 0o644}, version+"\n")
	write(&tar.Header{Name: root + "crypto/", Typeflag: tar.TypeDir, Mode: 0o755}, "")
	write(
		&tar.Header{Name: root + "crypto/release-" + version + ".c", Typeflag: tar.TypeReg, Mode: 0o644},
		"/* "+version+" */\n",
	)
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// addRelease adds a signed release archive to the fake mirror's files.
func addRelease(t *testing.T, m *fakeMirror, signer *pgptest.Signer, version string) {
	t.Helper()
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	filename := versioning.NewArchiveNaming("").Filename(versioning.MustParse(version))
	archive := makeRelease(t, version)
	m.files[filename] = archive
	m.files[versioning.SignatureFilename(filename)] = signer.Sign(t, archive)
}

// Repository fixtures

var testIdentity = Identity{Name: "Test Mirror", Email: "mirror@example.com"}

// initMirrorRepo makes a git repository with one commit, tagged with the baseline version.
func initMirrorRepo(t *testing.T, baseline string) *git.Repo {
	t.Helper()
	dir := t.TempDir()
	if err := git.Init(dir); err != nil {
		t.Fatal(err)
	}
	repo, err := git.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err = os.WriteFile(filepath.Join(dir, "VERSION"), []byte(baseline+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err = repo.StageAll(); err != nil {
		t.Fatal(err)
	}
	author := git.Signature{
		Name: testIdentity.Name, Email: testIdentity.Email, When: time.Unix(1700000000, 0),
	}
	hash, err := repo.Commit("LibreSSL v"+baseline, author)
	if err != nil {
		t.Fatal(err)
	}
	if err = repo.CreateTag("v"+baseline, hash, "Version v"+baseline, author); err != nil {
		t.Fatal(err)
	}
	return repo
}

func repoTagNames(t *testing.T, repo *git.Repo) []string {
	t.Helper()
	tags, err := repo.Tags()
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	slices.Sort(names)
	return names
}

func readWorktreeFile(t *testing.T, repo *git.Repo, name string) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(repo.Root(), filepath.FromSlash(name)))
	if err != nil {
		t.Fatal(err)
	}
	return string(content)
}

func versionStrings(versions []versioning.Version) []string {
	result := make([]string, 0, len(versions))
	for _, v := range versions {
		result = append(result, v.String())
	}
	return result
}
