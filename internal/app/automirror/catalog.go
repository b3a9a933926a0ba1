package automirror

import (
	"cmp"
	"context"
	"io"
	"slices"
	"time"

	"github.com/pkg/errors"

	"github.com/PlanktoScope/automirror/internal/clients/cli"
	"github.com/PlanktoScope/automirror/internal/clients/ftp"
	"github.com/PlanktoScope/automirror/pkg/versioning"
)

// Transport

// Session is a connection to a mirror's file server.
type Session interface {
	Login(user, password string) error
	ChangeDir(dir string) error
	List() ([]ftp.Entry, error)
	Retrieve(name string, w io.Writer) (int64, error)
	Close() error
}

// Transport opens sessions with mirrors.
type Transport interface {
	Connect(ctx context.Context, mirror Mirror) (Session, error)
}

// FTPTransport connects to mirrors over FTP, or over explicit FTPS for mirrors which support TLS.
type FTPTransport struct {
	// Timeout bounds connection establishment and any stall of a read or write.
	Timeout time.Duration
}

func (t FTPTransport) Connect(ctx context.Context, mirror Mirror) (Session, error) {
	conn, err := ftp.Dial(ctx, mirror.Host, ftp.Options{
		Timeout: t.Timeout,
		TLS:     mirror.TLS,
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Artifacts

// Artifact is a release archive listed by a mirror.
type Artifact struct {
	Mirror   Mirror
	Filename string
	Version  versioning.Version
	Size     uint64
}

// SignatureFilename returns the filename of the artifact's detached signature.
func (a Artifact) SignatureFilename() string {
	return versioning.SignatureFilename(a.Filename)
}

// SelectCandidates returns the release archives among the entries whose versions are strictly
// higher than the baseline, in ascending order of version. Entries which aren't regular files, or
// whose names aren't release archive names, are ignored. If several archives have the same version,
// only the one whose filename sorts first is kept.
func SelectCandidates(
	mirror Mirror, entries []ftp.Entry, naming versioning.ArchiveNaming, baseline versioning.Version,
) []Artifact {
	candidates := make([]Artifact, 0, len(entries))
	for _, entry := range entries {
		if entry.Type != ftp.EntryTypeFile {
			continue
		}
		v, ok := naming.Parse(entry.Name)
		if !ok || !v.GreaterThan(baseline) {
			continue
		}
		candidates = append(candidates, Artifact{
			Mirror:   mirror,
			Filename: entry.Name,
			Version:  v,
			Size:     entry.Size,
		})
	}
	slices.SortStableFunc(candidates, func(a, b Artifact) int {
		if c := a.Version.Compare(b.Version); c != 0 {
			return c
		}
		return cmp.Compare(a.Filename, b.Filename)
	})
	return slices.CompactFunc(candidates, func(a, b Artifact) bool {
		return a.Version.Equal(b.Version)
	})
}

// Catalog

// Catalog discovers release archives on mirrors.
type Catalog struct {
	Transport Transport
	Naming    versioning.ArchiveNaming
	Out       io.Writer
}

// Listing is the sorted sequence of candidate artifacts found on a mirror. It holds the session
// used to list the mirror, so that candidates can be downloaded from the same session; it must be
// closed when the mirror is no longer needed.
type Listing struct {
	Mirror     Mirror
	Candidates []Artifact
	session    Session
}

// ListAbove connects to the mirror, changes into the mirror's release directory, and lists the
// release archives there with versions strictly higher than the baseline.
func (c *Catalog) ListAbove(
	ctx context.Context, indent int, mirror Mirror, baseline versioning.Version,
) (listing *Listing, err error) {
	cli.IndentedFprintf(indent, c.Out, "Connecting to %s...\n", mirror.Host)
	session, err := c.Transport.Connect(ctx, mirror)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't connect to mirror %s", mirror.Host)
	}
	defer func() {
		if err == nil {
			return
		}
		if cerr := session.Close(); cerr != nil {
			cli.Warnf(indent+1, c.Out, "couldn't close session with %s: %s", mirror.Host, cerr)
		}
	}()

	user, password := "", ""
	if mirror.Credentials != nil {
		user, password = mirror.Credentials.User, mirror.Credentials.Password
	}
	if err = session.Login(user, password); err != nil {
		return nil, errors.Wrapf(err, "couldn't log in to mirror %s", mirror.Host)
	}
	if err = session.ChangeDir(mirror.Path); err != nil {
		return nil, errors.Wrapf(err, "couldn't open release directory of mirror %s", mirror.Host)
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := session.List()
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't list releases on mirror %s", mirror.Host)
	}

	candidates := SelectCandidates(mirror, entries, c.Naming, baseline)
	cli.IndentedFprintf(
		indent, c.Out, "Found %d release(s) newer than %s on %s\n",
		len(candidates), baseline, mirror.Host,
	)
	for _, a := range candidates {
		cli.IndentedFprintf(indent+1, c.Out, "%s\n", a.Filename)
	}
	return &Listing{
		Mirror:     mirror,
		Candidates: candidates,
		session:    session,
	}, nil
}

// Download downloads the named file from the mirror's release directory into w. Any failure is
// reported as a [*FetchError].
func (l *Listing) Download(filename string, w io.Writer) (int64, error) {
	n, err := l.session.Retrieve(filename, w)
	if err != nil {
		return n, &FetchError{Mirror: l.Mirror, Filename: filename, Err: err}
	}
	return n, nil
}

// Close ends the session with the mirror.
func (l *Listing) Close() error {
	return l.session.Close()
}
