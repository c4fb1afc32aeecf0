package grpc

import (
	"context"
	"net"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/KOMKZ/go-yogan-admission/admission"
	"github.com/KOMKZ/go-yogan-admission/jwt"
	"github.com/KOMKZ/go-yogan-admission/limiter"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// RetryAfterMetadataKey trailer carrying the retry hint in whole seconds
const RetryAfterMetadataKey = "retry-after"

// AuthorizationMetadataKey incoming metadata key holding "Bearer <token>"
const AuthorizationMetadataKey = "authorization"

// AdmissionOptions admission interceptor settings
type AdmissionOptions struct {
	// Policy explicit policy for every call, empty means the endpoint mapping decides
	Policy string

	// Tokens verifies bearer tokens; the token identity becomes the user id.
	// Calls without a token are anonymous, calls with an invalid one are Unauthenticated.
	Tokens jwt.TokenManager

	// TrustedUserMetadata metadata key taken as the user id without verification.
	// Only for servers behind a proxy that authenticates callers and sets the key.
	TrustedUserMetadata string
}

// UnaryAdmissionInterceptor evaluates every unary call before the handler runs.
// The endpoint is the full method name; the lease is released when the handler returns.
func UnaryAdmissionInterceptor(manager *limiter.Manager, opts AdmissionOptions) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler) (interface{}, error) {
		if manager == nil || !manager.IsEnabled() {
			return handler(ctx, req)
		}

		call, err := admissionRequest(ctx, info.FullMethod, opts)
		if err != nil {
			return nil, err
		}
		lease := manager.Evaluate(ctx, call)
		if !lease.Granted() {
			if md := retryTrailer(lease); md != nil {
				_ = grpc.SetTrailer(ctx, md)
			}
			return nil, LeaseStatus(lease).Err()
		}
		defer lease.Release()

		return handler(ctx, req)
	}
}

// StreamAdmissionInterceptor evaluates a stream once when it opens.
// The lease is held for the lifetime of the stream.
func StreamAdmissionInterceptor(manager *limiter.Manager, opts AdmissionOptions) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if manager == nil || !manager.IsEnabled() {
			return handler(srv, ss)
		}

		ctx := ss.Context()
		call, err := admissionRequest(ctx, info.FullMethod, opts)
		if err != nil {
			return err
		}
		lease := manager.Evaluate(ctx, call)
		if !lease.Granted() {
			if md := retryTrailer(lease); md != nil {
				ss.SetTrailer(md)
			}
			return LeaseStatus(lease).Err()
		}
		defer lease.Release()

		return handler(srv, ss)
	}
}

// LeaseStatus maps a denied lease to a gRPC status.
// Waiting that ended by cancellation maps to Canceled, a queue timeout to
// Unavailable, every other denial to ResourceExhausted.
func LeaseStatus(lease *limiter.Lease) *status.Status {
	e := admission.FromLease(lease)
	if e == nil {
		return status.New(codes.OK, "")
	}

	code := codes.ResourceExhausted
	switch lease.Reason() {
	case limiter.ReasonCancelled:
		code = codes.Canceled
	case limiter.ReasonWaitTimeout:
		code = codes.Unavailable
	}
	return status.New(code, e.Message())
}

func retryTrailer(lease *limiter.Lease) metadata.MD {
	retry, ok := lease.RetryAfter()
	if !ok {
		return nil
	}
	return metadata.Pairs(RetryAfterMetadataKey, strconv.FormatInt(admission.RetryAfterSeconds(retry), 10))
}

// admissionRequest builds the admission view of an incoming call.
// Metadata keys are canonicalized so header partitions match HTTP header names.
func admissionRequest(ctx context.Context, method string, opts AdmissionOptions) (*limiter.Request, error) {
	req := &limiter.Request{
		Endpoint: method,
		Policy:   opts.Policy,
		ClientIP: peerIP(ctx),
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return req, nil
	}
	req.Headers = make(map[string]string, len(md))
	for key, values := range md {
		if len(values) == 0 || strings.HasPrefix(key, ":") || key == AuthorizationMetadataKey {
			continue
		}
		req.Headers[textproto.CanonicalMIMEHeaderKey(key)] = values[0]
	}

	userID, err := callerIdentity(ctx, md, opts)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	req.UserID = userID
	return req, nil
}

// callerIdentity verified token identity, else the trusted metadata key if configured
func callerIdentity(ctx context.Context, md metadata.MD, opts AdmissionOptions) (string, error) {
	if opts.Tokens != nil {
		if values := md.Get(AuthorizationMetadataKey); len(values) > 0 {
			token := strings.TrimSpace(strings.TrimPrefix(values[0], "Bearer "))
			if token == "" {
				return "", jwt.ErrTokenMissing
			}
			claims, err := opts.Tokens.VerifyToken(ctx, token)
			if err != nil {
				return "", err
			}
			return claims.Identity(), nil
		}
	}
	if opts.TrustedUserMetadata != "" {
		if ids := md.Get(opts.TrustedUserMetadata); len(ids) > 0 {
			return ids[0], nil
		}
	}
	return "", nil
}

func peerIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
