package automirror

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"os"
	"syscall"

	"github.com/pkg/errors"

	"github.com/PlanktoScope/automirror/internal/clients/ftp"
	"github.com/PlanktoScope/automirror/pkg/versioning"
)

var (
	// ErrNoTagsFound is reported when the repository has no release tags to compute a baseline from.
	ErrNoTagsFound = errors.New("no release tags found in repository")
	// ErrPoolExhausted is reported when every mirror in the pool has already been drawn.
	ErrPoolExhausted = errors.New("mirror pool is exhausted")
)

// FetchError reports a failure to download an artifact or its signature from a mirror.
type FetchError struct {
	Mirror   Mirror
	Filename string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("couldn't fetch %s from %s: %s", e.Filename, e.Mirror, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// AuthenticationError reports that an artifact's signature couldn't be verified.
type AuthenticationError struct {
	Filename string
	Version  versioning.Version
	Err      error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("unable to verify signature for %s: %s", e.Filename, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// ExtractionError reports a failure while replacing the worktree with an artifact's contents.
type ExtractionError struct {
	Version versioning.Version
	Err     error
	// RollbackErr is set if the worktree couldn't be restored after the failure.
	RollbackErr error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("couldn't replace worktree with release %s: %s", e.Version, e.Err)
	if e.RollbackErr != nil {
		msg += fmt.Sprintf(" (worktree is corrupt: couldn't restore it: %s)", e.RollbackErr)
	}
	return msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// RepositoryError reports a failure to read or record history in the local repository.
type RepositoryError struct {
	Op  string
	Err error
	// RollbackErr is set if the repository couldn't be restored after the failure.
	RollbackErr error
}

func (e *RepositoryError) Error() string {
	msg := fmt.Sprintf("couldn't %s: %s", e.Op, e.Err)
	if e.RollbackErr != nil {
		msg += fmt.Sprintf(" (couldn't restore repository: %s)", e.RollbackErr)
	}
	return msg
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// ConfigError reports invalid configuration.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %s", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Error classification

// ErrorClass determines how the failover controller reacts to an error.
type ErrorClass int

const (
	// Fatal errors abort the run.
	Fatal ErrorClass = iota
	// Retryable errors abandon the current mirror, and the next mirror is tried.
	Retryable
)

func (c ErrorClass) String() string {
	switch c {
	case Retryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// Classify maps an error to an [ErrorClass]. Errors from talking to a mirror (error replies,
// refused or reset connections, name resolution failures, timeouts, TLS failures, and interrupted
// transfers) are retryable; anything not recognized is fatal.
func Classify(err error) ErrorClass {
	if err == nil {
		return Fatal
	}

	var authErr *AuthenticationError
	var extractErr *ExtractionError
	var repoErr *RepositoryError
	var configErr *ConfigError
	switch {
	case errors.As(err, &authErr), errors.As(err, &extractErr), errors.As(err, &repoErr),
		errors.As(err, &configErr):
		return Fatal
	}

	if errors.Is(err, context.Canceled) {
		return Fatal
	}

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return Retryable
	}
	// Every failed exchange with a server, including replies jftp only reports as text
	var serverErr *ftp.ServerError
	if errors.As(err, &serverErr) {
		return Retryable
	}
	if isMirrorError(err) {
		return Retryable
	}
	return Fatal
}

func isMirrorError(err error) bool {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		// 4xx and 5xx replies, e.g. 530 (not logged in) or 550 (no such directory)
		return protoErr.Code >= 400 && protoErr.Code < 600
	}
	var protoErrValue textproto.ProtocolError
	if errors.As(err, &protoErrValue) {
		return true
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED), errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ETIMEDOUT):
		return true
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return true
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return true
	}

	var dnsErr *net.DNSError
	var opErr *net.OpError
	var addrErr *net.AddrError
	if errors.As(err, &dnsErr) || errors.As(err, &opErr) || errors.As(err, &addrErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var certErr *tls.CertificateVerificationError
	var recordErr tls.RecordHeaderError
	var unknownAuthErr x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var invalidCertErr x509.CertificateInvalidError
	var alertErr tls.AlertError
	return errors.As(err, &certErr) || errors.As(err, &recordErr) ||
		errors.As(err, &unknownAuthErr) || errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidCertErr) || errors.As(err, &alertErr)
}
