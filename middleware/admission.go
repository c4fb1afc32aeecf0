package middleware

import (
	"net/http"
	"strconv"

	"github.com/KOMKZ/go-yogan-admission/admission"
	"github.com/KOMKZ/go-yogan-admission/httpx"
	"github.com/KOMKZ/go-yogan-admission/limiter"
	"github.com/gin-gonic/gin"
)

// UserIDKey gin context key holding the authenticated user id
const UserIDKey = "user_id"

// AdmissionConfig admission middleware configuration
type AdmissionConfig struct {
	// Manager admission manager (required)
	Manager *limiter.Manager

	// Policy explicit policy for every request through this middleware.
	// Empty means the manager's endpoint mapping decides.
	Policy string

	// EndpointFunc endpoint identifier (default: route pattern, else URL path)
	EndpointFunc func(*gin.Context) string

	// SkipPaths paths never evaluated
	SkipPaths []string

	// RejectHandler renders a denied lease (default: Retry-After header and error code body)
	RejectHandler func(*gin.Context, *limiter.Lease)
}

// Admission evaluates each request against the global policy and its endpoint's policy.
// The lease is released once the rest of the chain returns.
//
//	engine.Use(middleware.Admission(manager))
//	engine.GET("/orders", middleware.AdmissionPolicy(manager, "per-user"), handler)
func Admission(manager *limiter.Manager) gin.HandlerFunc {
	return AdmissionWithConfig(AdmissionConfig{Manager: manager})
}

// AdmissionPolicy attaches a named policy to a route or group
func AdmissionPolicy(manager *limiter.Manager, policy string) gin.HandlerFunc {
	return AdmissionWithConfig(AdmissionConfig{Manager: manager, Policy: policy})
}

// AdmissionWithConfig creates the middleware with a custom configuration
func AdmissionWithConfig(cfg AdmissionConfig) gin.HandlerFunc {
	if cfg.Manager == nil {
		panic("AdmissionConfig.Manager cannot be nil")
	}
	if cfg.EndpointFunc == nil {
		cfg.EndpointFunc = routeEndpoint
	}
	if cfg.RejectHandler == nil {
		cfg.RejectHandler = RejectJSON
	}

	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skip[path] = true
	}

	return func(c *gin.Context) {
		if !cfg.Manager.IsEnabled() || skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		req := AdmissionRequest(c, cfg.EndpointFunc(c))
		req.Policy = cfg.Policy

		lease := cfg.Manager.Evaluate(c.Request.Context(), req)
		if !lease.Granted() {
			cfg.RejectHandler(c, lease)
			c.Abort()
			return
		}
		defer lease.Release()

		c.Next()
	}
}

// AdmissionRequest builds the admission view of a gin request
func AdmissionRequest(c *gin.Context, endpoint string) *limiter.Request {
	req := &limiter.Request{
		Endpoint: endpoint,
		ClientIP: c.ClientIP(),
		Headers:  flattenHeader(c.Request.Header),
	}
	if v, ok := c.Get(UserIDKey); ok {
		if id, ok := v.(string); ok {
			req.UserID = id
		}
	}
	return req
}

// RejectJSON default reject handler
func RejectJSON(c *gin.Context, lease *limiter.Lease) {
	setRetryAfter(c.Writer.Header(), lease)
	httpx.HandleError(c, admission.FromLease(lease))
}

func routeEndpoint(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return c.Request.URL.Path
}

func setRetryAfter(h http.Header, lease *limiter.Lease) {
	if retry, ok := lease.RetryAfter(); ok {
		h.Set("Retry-After", strconv.FormatInt(admission.RetryAfterSeconds(retry), 10))
	}
}

// flattenHeader first value of each header, keyed canonically
func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) > 0 {
			out[name] = values[0]
		}
	}
	return out
}
