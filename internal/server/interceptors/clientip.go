package interceptors

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

var clientIPKey = contextKey{"client_ip"}

// TrustedProxies is the set of peer networks whose forwarding headers are
// believed. The zero value and nil trust nobody.
type TrustedProxies struct {
	nets []netip.Prefix
}

// ParseTrustedProxies parses CIDRs or bare addresses. Blank entries are skipped.
func ParseTrustedProxies(specs []string) (*TrustedProxies, error) {
	t := &TrustedProxies{}
	for _, raw := range specs {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if strings.Contains(s, "/") {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
			}
			t.nets = append(t.nets, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
		}
		a = a.Unmap()
		t.nets = append(t.nets, netip.PrefixFrom(a, a.BitLen()))
	}
	return t, nil
}

// Contains reports whether addr falls inside a trusted network.
func (t *TrustedProxies) Contains(addr netip.Addr) bool {
	if t == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t.nets {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolve returns the caller address. Forwarding headers are only consulted
// when the transport peer is trusted. x-forwarded-for is walked right to
// left and the first untrusted hop wins; x-real-ip is used when no
// x-forwarded-for hop is usable.
func (t *TrustedProxies) Resolve(ctx context.Context) string {
	peerIP, raw := peerAddr(ctx)
	if !t.Contains(peerIP) {
		return raw
	}
	md, _ := metadata.FromIncomingContext(ctx)
	if ip, ok := t.fromForwardedFor(md.Get("x-forwarded-for")); ok {
		return ip
	}
	for _, v := range md.Get("x-real-ip") {
		if a, err := netip.ParseAddr(strings.TrimSpace(v)); err == nil {
			return a.Unmap().String()
		}
	}
	return raw
}

func (t *TrustedProxies) fromForwardedFor(values []string) (string, bool) {
	var hops []string
	for _, v := range values {
		hops = append(hops, strings.Split(v, ",")...)
	}
	var last netip.Addr
	for i := len(hops) - 1; i >= 0; i-- {
		a, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			// Anything left of a malformed hop was written by the client.
			break
		}
		a = a.Unmap()
		if !t.Contains(a) {
			return a.String(), true
		}
		last = a
	}
	if last.IsValid() {
		return last.String(), true
	}
	return "", false
}

// peerAddr returns the parsed transport peer address and its display form.
func peerAddr(ctx context.Context) (netip.Addr, string) {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return netip.Addr{}, "unknown"
	}
	host := p.Addr.String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	a, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, host
	}
	a = a.Unmap()
	return a, a.String()
}

// ClientIPUnary resolves the caller address once per RPC and stores it for
// ClientIP. It must run before any interceptor that logs the address.
func ClientIPUnary(trusted *TrustedProxies) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		return handler(WithClientIP(ctx, trusted.Resolve(ctx)), req)
	}
}

// WithClientIP returns a context carrying the resolved caller address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the caller address recorded on log lines and audit
// entries. Without ClientIPUnary in the chain only the transport peer is
// used; forwarding headers are never trusted.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey).(string); ok && v != "" {
		return v
	}
	var none *TrustedProxies
	return none.Resolve(ctx)
}
