package worker

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"
)

var (
	errBlockedAddress = errors.New("source address is not public")
	errTooLarge       = errors.New("video exceeds size limit")
)

const maxRedirects = 5

// publicAddr reports whether ip may be fetched from: loopback, private, link-local,
// multicast and unspecified ranges (including their IPv4-mapped forms) are refused.
func publicAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	return ip.IsValid() &&
		!ip.IsLoopback() &&
		!ip.IsPrivate() &&
		!ip.IsLinkLocalUnicast() &&
		!ip.IsLinkLocalMulticast() &&
		!ip.IsInterfaceLocalMulticast() &&
		!ip.IsMulticast() &&
		!ip.IsUnspecified() &&
		!sharedAddressSpace.Contains(ip)
}

// 100.64.0.0/10 is carrier-grade NAT space, reachable inside many cloud VPCs.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// refuseInternal runs after DNS resolution for every connection, so redirects and
// hostnames that resolve to internal addresses are covered too.
func refuseInternal(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", errBlockedAddress, address)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil || !publicAddr(ip) {
		return fmt.Errorf("%w: %s", errBlockedAddress, address)
	}
	return nil
}

// NewSourceClient returns the client video imports download with. It only dials public
// addresses, ignores proxy settings and follows at most five http(s) redirects.
func NewSourceClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   refuseInternal,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("%w: too many redirects", ErrPermanent)
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return fmt.Errorf("%w: redirect to %s scheme", ErrPermanent, req.URL.Scheme)
			}
			return nil
		},
	}
}

// limitedReader fails with errTooLarge once more than limit bytes have been read,
// instead of truncating like io.LimitReader.
type limitedReader struct {
	r        io.Reader
	limit    int64
	read     int64
	exceeded bool
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.exceeded {
		return 0, errTooLarge
	}
	// one byte past the limit is enough to tell an oversized stream apart
	if room := l.limit - l.read + 1; int64(len(p)) > room {
		p = p[:room]
	}
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.read > l.limit {
		l.exceeded = true
		return 0, errTooLarge
	}
	return n, err
}
