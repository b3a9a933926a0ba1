package automirror

import (
	"bytes"
	"context"
	"io"
	"net/textproto"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/PlanktoScope/automirror/internal/clients/ftp"
	"github.com/PlanktoScope/automirror/pkg/versioning"
)

func fileEntries(names ...string) []ftp.Entry {
	entries := make([]ftp.Entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, ftp.Entry{Name: name, Type: ftp.EntryTypeFile})
	}
	return entries
}

func candidateFilenames(artifacts []Artifact) []string {
	names := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		names = append(names, a.Filename)
	}
	return names
}

func TestSelectCandidates(t *testing.T) {
	t.Parallel()
	mirror := Mirror{Host: "ftp.example.org", Path: "/pub/LibreSSL/"}
	for name, c := range map[string]struct {
		entries  []ftp.Entry
		baseline string
		prefix   string
		want     []string
	}{
		"filters and orders": {
			entries: fileEntries(
				"libressl-3.2.0.tar.gz", "libressl-3.0.2.tar.gz", "libressl-3.1.0.tar.gz",
				"readme.txt", "libressl-3.1.1.tar.gz",
			),
			baseline: "3.1.0",
			want:     []string{"libressl-3.1.1.tar.gz", "libressl-3.2.0.tar.gz"},
		},
		"numeric order": {
			entries: fileEntries(
				"libressl-3.10.0.tar.gz", "libressl-3.9.2.tar.gz", "libressl-3.9.10.tar.gz",
			),
			baseline: "3.9.0",
			want: []string{
				"libressl-3.9.2.tar.gz", "libressl-3.9.10.tar.gz", "libressl-3.10.0.tar.gz",
			},
		},
		"ignores signatures and other formats": {
			entries: fileEntries(
				"libressl-3.2.0.tar.gz.asc", "libressl-3.2.0.tgz", "libressl-3.2.0.tar.gz.sig",
				"SHA256", "libressl-3.2.0-windows.zip", "xlibressl-3.2.0.tar.gz", "libressl-3x2.tar.gz",
			),
			baseline: "3.1.0",
			want:     []string{},
		},
		"ignores directories and links": {
			entries: []ftp.Entry{
				{Name: "libressl-3.2.0.tar.gz", Type: ftp.EntryTypeDir},
				{Name: "libressl-3.3.0.tar.gz", Type: ftp.EntryTypeLink},
				{Name: "libressl-3.4.0.tar.gz", Type: ftp.EntryTypeFile},
			},
			baseline: "3.1.0",
			want:     []string{"libressl-3.4.0.tar.gz"},
		},
		"baseline is excluded": {
			entries:  fileEntries("libressl-3.1.0.tar.gz", "libressl-3.1.tar.gz"),
			baseline: "3.1.0",
			want:     []string{},
		},
		"equal versions keep first filename": {
			entries:  fileEntries("libressl-3.2.tar.gz", "libressl-3.2.0.tar.gz", "libressl-3.3.tar.gz"),
			baseline: "3.1.0",
			want:     []string{"libressl-3.2.0.tar.gz", "libressl-3.3.tar.gz"},
		},
		"custom prefix": {
			entries:  fileEntries("libressl-3.2.0.tar.gz", "portable-3.2.0.tar.gz"),
			baseline: "3.1.0",
			prefix:   "portable-",
			want:     []string{"portable-3.2.0.tar.gz"},
		},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got := candidateFilenames(SelectCandidates(
				mirror, c.entries, versioning.NewArchiveNaming(c.prefix), versioning.MustParse(c.baseline),
			))
			if !cmp.Equal(got, c.want) {
				t.Errorf("diff (-want +got):\n%s", cmp.Diff(c.want, got))
			}
		})
	}
}

func TestSelectCandidatesRecordsArtifacts(t *testing.T) {
	t.Parallel()
	mirror := Mirror{Host: "ftp.example.org", Path: "/pub/LibreSSL/"}
	candidates := SelectCandidates(
		mirror,
		[]ftp.Entry{{Name: "libressl-3.2.0.tar.gz", Type: ftp.EntryTypeFile, Size: 4096}},
		versioning.NewArchiveNaming(""),
		versioning.MustParse("3.1.0"),
	)
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	a := candidates[0]
	if a.Mirror != mirror || a.Size != 4096 || a.Version.String() != "3.2.0" {
		t.Errorf("unexpected artifact %+v", a)
	}
	if got, want := a.SignatureFilename(), "libressl-3.2.0.tar.gz.asc"; got != want {
		t.Errorf("SignatureFilename() = %s, want %s", got, want)
	}
}

func TestCatalogListAbove(t *testing.T) {
	t.Parallel()
	transport := newFakeTransport(map[string]*fakeMirror{
		"ftp.example.org": {
			files: map[string][]byte{
				"libressl-3.0.2.tar.gz": []byte("a"),
				"libressl-3.1.0.tar.gz": []byte("b"),
				"libressl-3.1.1.tar.gz": []byte("c"),
				"libressl-3.2.0.tar.gz": []byte("d"),
				"readme.txt":            []byte("e"),
			},
			dirs: []string{"old"},
		},
	})
	catalog := &Catalog{Transport: transport, Out: io.Discard}
	mirror := Mirror{
		Host: "ftp.example.org", Path: "/pub/LibreSSL/",
		Credentials: &Credentials{User: "mirror", Password: "secret"},
	}

	listing, err := catalog.ListAbove(context.Background(), 0, mirror, versioning.MustParse("3.1.0"))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := candidateFilenames(listing.Candidates), []string{
		"libressl-3.1.1.tar.gz", "libressl-3.2.0.tar.gz",
	}; !cmp.Equal(got, want) {
		t.Errorf("diff (-want +got):\n%s", cmp.Diff(want, got))
	}
	if got, want := transport.logins, []string{"mirror"}; !cmp.Equal(got, want) {
		t.Errorf("logins diff (-want +got):\n%s", cmp.Diff(want, got))
	}
	if got, want := transport.dirs, []string{"/pub/LibreSSL/"}; !cmp.Equal(got, want) {
		t.Errorf("dirs diff (-want +got):\n%s", cmp.Diff(want, got))
	}

	var buf bytes.Buffer
	if _, err = listing.Download("libressl-3.2.0.tar.gz", &buf); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "d" {
		t.Errorf("downloaded %q, want %q", got, "d")
	}
	_, err = listing.Download("libressl-9.9.9.tar.gz", io.Discard)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error %v isn't a FetchError", err)
	}
	if fetchErr.Filename != "libressl-9.9.9.tar.gz" || fetchErr.Mirror.Host != "ftp.example.org" {
		t.Errorf("unexpected FetchError %+v", fetchErr)
	}

	if err = listing.Close(); err != nil {
		t.Fatal(err)
	}
	if transport.closed != 1 {
		t.Errorf("session was closed %d times, want 1", transport.closed)
	}
}

func TestCatalogListAboveAnonymous(t *testing.T) {
	t.Parallel()
	transport := newFakeTransport(map[string]*fakeMirror{"ftp.example.org": {}})
	catalog := &Catalog{Transport: transport, Out: io.Discard}
	listing, err := catalog.ListAbove(
		context.Background(), 0, Mirror{Host: "ftp.example.org", Path: "/pub/"},
		versioning.MustParse("3.1.0"),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = listing.Close()
	}()
	if len(listing.Candidates) != 0 {
		t.Errorf("got %d candidates from an empty mirror", len(listing.Candidates))
	}
	if got, want := transport.logins, []string{""}; !cmp.Equal(got, want) {
		t.Errorf("logins diff (-want +got):\n%s", cmp.Diff(want, got))
	}
}

func TestCatalogListAboveErrors(t *testing.T) {
	t.Parallel()
	for name, m := range map[string]*fakeMirror{
		"login":     {loginErr: &textproto.Error{Code: 530, Msg: "Login incorrect."}},
		"changeDir": {changeDirErr: &textproto.Error{Code: 550, Msg: "Failed to change directory."}},
		"list":      {listErr: errors.Wrap(io.ErrUnexpectedEOF, "couldn't read listing")},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			transport := newFakeTransport(map[string]*fakeMirror{"ftp.example.org": m})
			catalog := &Catalog{Transport: transport, Out: io.Discard}
			_, err := catalog.ListAbove(
				context.Background(), 0, Mirror{Host: "ftp.example.org", Path: "/pub/"},
				versioning.MustParse("3.1.0"),
			)
			if err == nil {
				t.Fatal("ListAbove succeeded")
			}
			if class := Classify(err); class != Retryable {
				t.Errorf("error %v is %s, want retryable", err, class)
			}
			if transport.closed != 1 {
				t.Errorf("session was closed %d times, want 1", transport.closed)
			}
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		t.Parallel()
		catalog := &Catalog{Transport: newFakeTransport(nil), Out: io.Discard}
		_, err := catalog.ListAbove(
			context.Background(), 0, Mirror{Host: "ftp.example.org", Path: "/pub/"},
			versioning.MustParse("3.1.0"),
		)
		if class := Classify(err); class != Retryable {
			t.Errorf("error %v is %s, want retryable", err, class)
		}
	})
}
