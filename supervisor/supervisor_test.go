package supervisor

import (
	"net"
	"testing"
	"time"
)

func TestBackoffDefaultsToFiveSeconds(t *testing.T) {
	s := &Supervisor{}
	if got := s.backoff(); got != 5*time.Second {
		t.Errorf("backoff() = %v, want 5s", got)
	}
}

func TestBackoffHonorsConfiguredValue(t *testing.T) {
	s := &Supervisor{Cfg: Config{ReconnectBackoff: 250 * time.Millisecond}}
	if got := s.backoff(); got != 250*time.Millisecond {
		t.Errorf("backoff() = %v, want 250ms", got)
	}
}

func mustParseIP(t *testing.T, s string) net.IPAddr {
	t.Helper()
	ip := net.ParseIP(s)
	if ip == nil {
		t.Fatalf("ParseIP(%q) failed", s)
	}
	return net.IPAddr{IP: ip}
}

func TestOrderAddrsPrefersV4ByDefault(t *testing.T) {
	v4 := mustParseIP(t, "192.0.2.1")
	v6 := mustParseIP(t, "2001:db8::1")

	got := orderAddrs([]net.IPAddr{v6, v4}, false)
	if len(got) != 2 || got[0].IP.String() != v4.IP.String() {
		t.Errorf("orderAddrs(preferV6=false) = %v, want v4 first", got)
	}
}

func TestOrderAddrsPrefersV6WhenRequested(t *testing.T) {
	v4 := mustParseIP(t, "192.0.2.1")
	v6 := mustParseIP(t, "2001:db8::1")

	got := orderAddrs([]net.IPAddr{v4, v6}, true)
	if len(got) != 2 || got[0].IP.String() != v6.IP.String() {
		t.Errorf("orderAddrs(preferV6=true) = %v, want v6 first", got)
	}
}

func TestRawFdRejectsNonSyscallConn(t *testing.T) {
	if _, err := rawFd(fakeConn{}); err == nil {
		t.Fatal("expected an error for a net.Conn with no raw descriptor")
	}
}

// fakeConn is a minimal net.Conn double that does not implement
// syscall.Conn, exercising rawFd's type-assertion failure path.
type fakeConn struct{ net.Conn }
