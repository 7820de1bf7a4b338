package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smartlab/internal/auth"
	"smartlab/internal/httpmiddleware"
)

// RouterConfig holds the transport-level knobs of the router.
type RouterConfig struct {
	// AllowOrigins lists browser origins allowed with credentials. Empty
	// allows any origin without credentials.
	AllowOrigins    []string
	RateLimitPerMin int
	Gatherer        prometheus.Gatherer
}

// NewRouter wires every route exactly once.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.Logger(h.log, "/healthz", "/metrics"))

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Provisioning-Key", httpmiddleware.RequestIDHeader},
		ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Content-Disposition"},
		AllowCredentials: len(cfg.AllowOrigins) > 0,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(securityHeaders())

	limit := func(c *gin.Context) { c.Next() }
	if cfg.RateLimitPerMin > 0 {
		limiter := httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
		limit = limiter.GinMiddleware(rateKey)
	}

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	public := v1.Group("", limit)
	public.GET("/rfid/status", h.ReaderStatus)
	public.POST("/devices/register", h.RegisterDevice)
	public.POST("/devices/refresh", h.RefreshDevice)

	reader := v1.Group("", auth.Bearer(h.Issuer, auth.RoleDevice), limit)
	reader.POST("/rfid/scans", h.CaptureScan)
	reader.POST("/rfid/access", h.VerifyAccess)

	admin := v1.Group("", auth.Bearer(h.Issuer, auth.RoleAdmin), limit)
	admin.GET("/rfid/readers/:deviceId/last", h.LastScan)
	admin.POST("/rfid/readers/:deviceId/confirm", h.ConfirmScan)
	admin.POST("/badges", h.EnrollBadge)
	admin.GET("/badges", h.ListBadges)
	admin.POST("/badges/check", h.CheckBadge)
	admin.DELETE("/badges/:personId", h.UnenrollBadge)
	admin.POST("/attendance/absences", h.RegisterAbsences)
	admin.GET("/attendance/daily", h.Daily)
	admin.GET("/attendance/daily/export", h.DailyExport)
	admin.GET("/people/:id/attendance", h.History)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": errorBody{Kind: "not_found", Message: "route not found"}})
	})
	return r
}

// rateKey limits authenticated callers per token subject and everybody else
// per client IP.
func rateKey(c *gin.Context) string {
	if claims, ok := auth.ClaimsFrom(c); ok {
		return claims.Role + ":" + claims.Subject
	}
	return ""
}

// securityHeaders sets the usual browser hardening headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
