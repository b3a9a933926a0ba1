package automirror

import (
	"math/rand/v2"
	"slices"
)

// Credentials are used to log in to a mirror. Mirrors without credentials are accessed
// anonymously.
type Credentials struct {
	User     string `yaml:"user"`
	Password string `yaml:"password,omitempty"`
	Account  string `yaml:"account,omitempty"`
	// Keyring indicates that the password should be looked up in the OS keyring.
	Keyring bool `yaml:"keyring,omitempty"`
}

// Mirror describes a remote file server which hosts release archives in a directory.
type Mirror struct {
	// Host is the server's hostname, optionally with a port.
	Host string `yaml:"host"`
	// Path is the directory on the server which contains the release archives.
	Path string `yaml:"path"`
	// TLS indicates that the server supports explicit FTPS.
	TLS         bool         `yaml:"tls"`
	Credentials *Credentials `yaml:"credentials,omitempty"`
}

// ID returns the identity of the mirror, which combines its host and path.
func (m Mirror) ID() string {
	return m.Host + m.Path
}

func (m Mirror) String() string {
	return m.Host
}

const libreSSLPath = "/pub/OpenBSD/LibreSSL/"

// DefaultMirrors returns the built-in list of OpenBSD FTP mirrors which carry LibreSSL releases.
func DefaultMirrors() []Mirror {
	return []Mirror{
		{Host: "mirror.internode.on.net", Path: libreSSLPath},
		{Host: "mirror.csclub.uwaterloo.ca", Path: libreSSLPath},
		{Host: "ftp2.fr.openbsd.org", Path: libreSSLPath},
		{Host: "ftp.fsn.hu", Path: libreSSLPath},
		{Host: "ftp.heanet.ie", Path: libreSSLPath},
		{Host: "ftp.riken.jp", Path: libreSSLPath},
		{Host: "ftp.bit.nl", Path: libreSSLPath},
		{Host: "ftp.man.poznan.pl", Path: libreSSLPath, TLS: true},
		{Host: "mirror.bytemark.co.uk", Path: libreSSLPath},
		{Host: "ftp5.usa.openbsd.org", Path: libreSSLPath},
	}
}

// MirrorPool is a set of mirrors from which mirrors are drawn without replacement, in an order
// which is shuffled once when the pool is made. Each mirror is drawn at most once.
type MirrorPool struct {
	mirrors []Mirror
	next    int
}

// NewMirrorPool makes a pool of the mirrors, shuffled with the random number generator. If rng is
// nil, the mirrors are drawn in the order provided.
func NewMirrorPool(mirrors []Mirror, rng *rand.Rand) *MirrorPool {
	shuffled := slices.Clone(mirrors)
	if rng != nil {
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
	}
	return &MirrorPool{mirrors: shuffled}
}

// NewSeededRand makes a random number generator for shuffling a [MirrorPool], so that the order of
// mirrors is reproducible for a given seed.
func NewSeededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// Draw removes and returns the next mirror in the pool. It returns [ErrPoolExhausted] if every
// mirror has already been drawn.
func (p *MirrorPool) Draw() (Mirror, error) {
	if p.next >= len(p.mirrors) {
		return Mirror{}, ErrPoolExhausted
	}
	m := p.mirrors[p.next]
	p.next++
	return m, nil
}

// Len returns the number of mirrors which haven't been drawn yet.
func (p *MirrorPool) Len() int {
	return len(p.mirrors) - p.next
}

// Remaining returns the mirrors which haven't been drawn yet, in the order they would be drawn.
func (p *MirrorPool) Remaining() []Mirror {
	return slices.Clone(p.mirrors[p.next:])
}

// FilterBySecurity returns a pool of the undrawn mirrors which support TLS if tlsOnly is set;
// otherwise it returns a pool of all undrawn mirrors. Draw order is preserved.
func (p *MirrorPool) FilterBySecurity(tlsOnly bool) *MirrorPool {
	filtered := make([]Mirror, 0, p.Len())
	for _, m := range p.mirrors[p.next:] {
		if tlsOnly && !m.TLS {
			continue
		}
		filtered = append(filtered, m)
	}
	return &MirrorPool{mirrors: filtered}
}
