package main

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/KOMKZ/go-yogan-admission/errcode"
	"github.com/KOMKZ/go-yogan-admission/httpx"
	"github.com/KOMKZ/go-yogan-admission/jwt"
	"github.com/KOMKZ/go-yogan-admission/limiter"
	"github.com/KOMKZ/go-yogan-admission/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// demoPolicies route suffix and policy name are the same
var demoPolicies = []string{"fixed", "sliding", "token", "concurrency", "per-user"}

// ticksAtUnixEpoch 100ns ticks between 0001-01-01 and 1970-01-01
const ticksAtUnixEpoch = 621355968000000000

var errPolicyNotFound = errcode.Register(errcode.New(90, 1, "demo", "demo.policy_not_found",
	"Policy not found", http.StatusNotFound))

type routeDeps struct {
	manager    *limiter.Manager
	tokens     jwt.TokenManager // nil leaves every caller anonymous
	prometheus *prometheus.Registry
	metrics    *middleware.HTTPMetrics // nil disables request metrics
}

func registerRoutes(engine *gin.Engine, deps routeDeps) {
	if deps.metrics != nil {
		engine.Use(deps.metrics.Handler())
	}
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.prometheus, promhttp.HandlerOpts{})))

	group := engine.Group("/ratelimit/rate-limit")
	if deps.tokens != nil {
		// a valid bearer token makes per-user partition by user, anonymous calls by IP
		group.Use(middleware.OptionalJWT(deps.tokens))
	}
	for _, policy := range demoPolicies {
		group.GET("/"+policy, middleware.AdmissionPolicy(deps.manager, policy), tickHandler)
	}

	engine.GET("/ratelimit/stats/:policy", statsHandler(deps.manager))
}

// tickHandler answers with a small token derived from the current time
func tickHandler(c *gin.Context) {
	httpx.OkJson(c, tickToken(time.Now()))
}

func tickToken(now time.Time) string {
	ticks := now.UnixNano()/100 + ticksAtUnixEpoch
	return fmt.Sprintf("%05d", ticks&0x11111)
}

// statsHandler counters of one policy
func statsHandler(manager *limiter.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		policy := c.Param("policy")
		if !slices.Contains(manager.Policies(), policy) {
			httpx.HandleError(c, errPolicyNotFound.WithMsgf("unknown policy %q", policy))
			return
		}
		httpx.OkJson(c, manager.GetMetrics(policy))
	}
}
