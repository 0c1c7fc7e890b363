package interceptors

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

func callerCtx(peerIP string, kv ...string) context.Context {
	ctx := context.Background()
	if peerIP != "" {
		ctx = peer.NewContext(ctx, &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP(peerIP), Port: 5555}})
	}
	if len(kv) > 0 {
		ctx = metadata.NewIncomingContext(ctx, metadata.Pairs(kv...))
	}
	return ctx
}

func TestTrustedProxiesResolve(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", " ", "192.168.1.1"})
	if err != nil {
		t.Fatalf("ParseTrustedProxies: %v", err)
	}
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"untrusted peer ignores forwarded for", callerCtx("203.0.113.9", "x-forwarded-for", "1.2.3.4"), "203.0.113.9"},
		{"untrusted peer ignores real ip", callerCtx("203.0.113.9", "x-real-ip", "1.2.3.4"), "203.0.113.9"},
		{"trusted peer uses nearest untrusted hop", callerCtx("10.0.0.5", "x-forwarded-for", "6.6.6.6, 198.51.100.7, 10.1.1.1"), "198.51.100.7"},
		{"trusted peer across header values", callerCtx("10.0.0.5", "x-forwarded-for", "198.51.100.7", "x-forwarded-for", "10.2.2.2"), "198.51.100.7"},
		{"all hops trusted uses leftmost", callerCtx("10.0.0.5", "x-forwarded-for", "10.3.3.3, 10.1.1.1"), "10.3.3.3"},
		{"malformed hop stops the walk", callerCtx("10.0.0.5", "x-forwarded-for", "198.51.100.7, junk"), "10.0.0.5"},
		{"trusted peer real ip", callerCtx("192.168.1.1", "x-real-ip", "198.51.100.8"), "198.51.100.8"},
		{"trusted peer no headers", callerCtx("192.168.1.1"), "192.168.1.1"},
		{"no peer", callerCtx("", "x-forwarded-for", "1.2.3.4"), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trusted.Resolve(tt.ctx); got != tt.want {
				t.Errorf("Resolve = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseTrustedProxies_Invalid(t *testing.T) {
	for _, spec := range []string{"10.0.0.0/33", "not-an-ip"} {
		if _, err := ParseTrustedProxies([]string{spec}); err == nil {
			t.Errorf("ParseTrustedProxies(%q) err = nil", spec)
		}
	}
}

func TestClientIP_PeerOnlyWithoutInterceptor(t *testing.T) {
	ctx := callerCtx("192.168.1.1", "x-forwarded-for", "10.0.0.1", "x-real-ip", "10.0.0.3")
	if got := ClientIP(ctx); got != "192.168.1.1" {
		t.Errorf("ClientIP = %q, want peer address", got)
	}
	if got := ClientIP(context.Background()); got != "unknown" {
		t.Errorf("ClientIP = %q, want unknown", got)
	}
}

func TestClientIPUnary(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("ParseTrustedProxies: %v", err)
	}
	var seen string
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		seen = ClientIP(ctx)
		return nil, nil
	}
	ctx := callerCtx("10.0.0.5", "x-forwarded-for", "198.51.100.7")
	if _, err := ClientIPUnary(trusted)(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/auth.v1.AuthService/Login"}, handler); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if seen != "198.51.100.7" {
		t.Errorf("ClientIP in handler = %q, want forwarded address", seen)
	}
	if _, err := ClientIPUnary(nil)(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/auth.v1.AuthService/Login"}, handler); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if seen != "10.0.0.5" {
		t.Errorf("ClientIP with no trusted proxies = %q, want peer", seen)
	}
}
