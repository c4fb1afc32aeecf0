package middleware

import (
	"net"
	"net/http"

	"github.com/KOMKZ/go-yogan-admission/admission"
	"github.com/KOMKZ/go-yogan-admission/httpx"
	"github.com/KOMKZ/go-yogan-admission/limiter"
)

// HTTPAdmissionConfig net/http admission configuration
type HTTPAdmissionConfig struct {
	// Manager admission manager (required)
	Manager *limiter.Manager

	// Policy explicit policy, empty uses the endpoint mapping
	Policy string

	// EndpointFunc endpoint identifier (default: matched ServeMux pattern, else URL path)
	EndpointFunc func(*http.Request) string

	// UserIDFunc authenticated user id (default: none)
	UserIDFunc func(*http.Request) string
}

// HTTPAdmission net/http middleware, usable with ServeMux or chi
//
//	r := chi.NewRouter()
//	r.With(middleware.HTTPAdmission(middleware.HTTPAdmissionConfig{
//	    Manager: manager,
//	    Policy:  "token",
//	})).Get("/token", handler)
func HTTPAdmission(cfg HTTPAdmissionConfig) func(http.Handler) http.Handler {
	if cfg.Manager == nil {
		panic("HTTPAdmissionConfig.Manager cannot be nil")
	}
	if cfg.EndpointFunc == nil {
		cfg.EndpointFunc = func(r *http.Request) string {
			if r.Pattern != "" {
				return r.Pattern
			}
			return r.URL.Path
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Manager.IsEnabled() {
				next.ServeHTTP(w, r)
				return
			}

			req := &limiter.Request{
				Endpoint: cfg.EndpointFunc(r),
				Policy:   cfg.Policy,
				ClientIP: remoteIP(r),
				Headers:  flattenHeader(r.Header),
			}
			if cfg.UserIDFunc != nil {
				req.UserID = cfg.UserIDFunc(r)
			}

			lease := cfg.Manager.Evaluate(r.Context(), req)
			if !lease.Granted() {
				setRetryAfter(w.Header(), lease)
				httpx.WriteError(w, r, admission.FromLease(lease))
				return
			}
			defer lease.Release()

			next.ServeHTTP(w, r)
		})
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
