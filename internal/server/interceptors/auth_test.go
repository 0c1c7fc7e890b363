package interceptors

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	devicedomain "bottle-monitor/backend/internal/device/domain"
	"bottle-monitor/backend/internal/security"
)

const testService = "test.v1.Service"

type tokenVerifier struct {
	tokens *security.TokenProvider
}

func (v tokenVerifier) VerifyAccess(token string) (string, error) {
	s, err := v.tokens.VerifySession(token)
	return s.PrincipalID, err
}

func (v tokenVerifier) VerifyDevice(token string) (devicedomain.Identity, error) {
	d, err := v.tokens.VerifyDevice(token)
	return devicedomain.Identity{DeviceID: d.DeviceID, ResourceID: d.ResourceID}, err
}

func newVerifier(t *testing.T) tokenVerifier {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	return tokenVerifier{tokens: tokens}
}

func withBearer(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
}

func info(method string) *grpc.UnaryServerInfo {
	return &grpc.UnaryServerInfo{FullMethod: "/" + testService + "/" + method}
}

func principalHandler(ctx context.Context, req interface{}) (interface{}, error) {
	id, _ := GetPrincipalID(ctx)
	return id, nil
}

func TestAuthUnary_PublicMethod(t *testing.T) {
	v := newVerifier(t)
	interceptor := AuthUnary(v, testService, map[string]bool{"/" + testService + "/Login": true})

	resp, err := interceptor(context.Background(), nil, info("Login"), principalHandler)
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if resp != "" {
		t.Errorf("principal = %v, want none", resp)
	}

	resp, err = interceptor(withBearer("garbage"), nil, info("Login"), principalHandler)
	if err != nil || resp != "" {
		t.Errorf("public method with bad token = %v, %v", resp, err)
	}

	token, _, err := v.tokens.IssueAccess("principal-1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	resp, err = interceptor(withBearer(token), nil, info("Login"), principalHandler)
	if err != nil || resp != "principal-1" {
		t.Errorf("public method with valid token = %v, %v", resp, err)
	}
}

func TestAuthUnary_ProtectedMethod(t *testing.T) {
	v := newVerifier(t)
	interceptor := AuthUnary(v, testService, nil)
	token, _, err := v.tokens.IssueAccess("principal-1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	resp, err := interceptor(withBearer(token), nil, info("WhoAmI"), principalHandler)
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if resp != "principal-1" {
		t.Errorf("principal = %v, want principal-1", resp)
	}
}

func TestAuthUnary_Rejections(t *testing.T) {
	v := newVerifier(t)
	interceptor := AuthUnary(v, testService, nil)

	expired, err := v.tokens.SignSession("principal-1", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("SignSession: %v", err)
	}
	device, err := v.tokens.SignDevice("device-1", "bottle-1")
	if err != nil {
		t.Fatalf("SignDevice: %v", err)
	}
	tests := []struct {
		name    string
		ctx     context.Context
		wantMsg string
	}{
		{"no metadata", context.Background(), MsgInvalidAuthorization},
		{"no bearer prefix", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic abc")), MsgInvalidAuthorization},
		{"garbage", withBearer("not-a-jwt"), MsgInvalidAuthorization},
		{"device credential", withBearer(device), MsgInvalidAuthorization},
		{"expired", withBearer(expired), MsgAccessTokenExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := interceptor(tt.ctx, nil, info("WhoAmI"), principalHandler)
			st, _ := status.FromError(err)
			if st.Code() != codes.Unauthenticated {
				t.Fatalf("code = %v, want Unauthenticated", st.Code())
			}
			if st.Message() != tt.wantMsg {
				t.Errorf("message = %q, want %q", st.Message(), tt.wantMsg)
			}
		})
	}
}

func TestAuthUnary_OtherServicePassesThrough(t *testing.T) {
	interceptor := AuthUnary(newVerifier(t), testService, nil)
	called := false
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/other.v1.Service/Call"},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			called = true
			return nil, nil
		})
	if err != nil || !called {
		t.Errorf("other service should pass through, err = %v, called = %v", err, called)
	}
}

func TestDeviceAuthUnary(t *testing.T) {
	v := newVerifier(t)
	interceptor := DeviceAuthUnary(v, testService)
	deviceHandler := func(ctx context.Context, req interface{}) (interface{}, error) {
		id, _ := GetDevice(ctx)
		return id, nil
	}

	token, err := v.tokens.SignDevice("device-1", "bottle-1")
	if err != nil {
		t.Fatalf("SignDevice: %v", err)
	}
	resp, err := interceptor(withBearer(token), nil, info("Identify"), deviceHandler)
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if got := resp.(devicedomain.Identity); got.DeviceID != "device-1" || got.ResourceID != "bottle-1" {
		t.Errorf("identity = %+v", got)
	}

	access, _, err := v.tokens.IssueAccess("principal-1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	for _, ctx := range []context.Context{context.Background(), withBearer(access), withBearer("garbage")} {
		_, err := interceptor(ctx, nil, info("Identify"), deviceHandler)
		if status.Code(err) != codes.Unauthenticated {
			t.Errorf("code = %v, want Unauthenticated", status.Code(err))
		}
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"BEARER abc", "abc"},
		{"Basic abc", ""},
		{"Bear", ""},
	}
	for _, tt := range tests {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", tt.header))
		if got := extractBearer(ctx); got != tt.want {
			t.Errorf("extractBearer(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
	if got := extractBearer(context.Background()); got != "" {
		t.Errorf("extractBearer without metadata = %q", got)
	}
}
