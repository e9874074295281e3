package http

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"remnabot/internal/entities"
	"remnabot/internal/logging"
	"remnabot/internal/tenancy"
	"remnabot/internal/usecases"
)

const claimsKey = "claims"

type Middleware struct {
	auth         Authenticator
	limit        rate.Limit
	burst        int
	rateLimiters map[int64]*rate.Limiter
	mu           sync.Mutex
}

func NewMiddleware(auth Authenticator, perSecond float64, burst int) *Middleware {
	if perSecond <= 0 {
		perSecond = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &Middleware{
		auth:         auth,
		limit:        rate.Limit(perSecond),
		burst:        burst,
		rateLimiters: make(map[int64]*rate.Limiter),
	}
}

func claimsFrom(c *gin.Context) *usecases.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*usecases.Claims)
	return claims
}

func (m *Middleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		claims, err := m.auth.ParseToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

func (m *Middleware) SuperAdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFrom(c)
		if claims == nil || claims.Role != entities.RoleSuperAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Superadmin only"})
			return
		}
		c.Next()
	}
}

// TenantScope binds the request context to the :bot_id of the route. Owners
// only get through for their own bot.
func (m *Middleware) TenantScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFrom(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		botID, err := strconv.ParseInt(c.Param("bot_id"), 10, 64)
		if err != nil || botID <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid bot_id"})
			return
		}
		if claims.Role != entities.RoleSuperAdmin && claims.BotID != botID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Not your bot"})
			return
		}

		ctx := tenancy.WithBot(c.Request.Context(), botID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RateLimitPerAdmin limits requests per admin id (must follow AuthRequired)
func (m *Middleware) RateLimitPerAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFrom(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Admin identity not found for rate limiting"})
			return
		}

		m.mu.Lock()
		limiter, exists := m.rateLimiters[claims.AdminID]
		if !exists {
			limiter = rate.NewLimiter(m.limit, m.burst)
			m.rateLimiters[claims.AdminID] = limiter
		}
		m.mu.Unlock()

		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		c.Next()
	}
}

// CORSMiddleware allows Cross-Origin requests
func (m *Middleware) CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// SecurityHeaders adds security headers to prevent common attacks
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("Referrer-Policy", "no-referrer")
		c.Writer.Header().Set("Content-Security-Policy", "default-src 'none'")

		c.Next()
	}
}

// RequestSizeLimiter limits request body size
func RequestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// RequestIDHeader carries the request id, echoed back when the caller sets it.
const RequestIDHeader = "X-Request-ID"

// RequestLogger puts a request scoped logger into the context and logs the
// outcome of every request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)
		reqLogger := logger.With(
			zap.String(logging.RequestIDKey, requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)
		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), reqLogger))

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{zap.Int("status", status), zap.Duration("latency", time.Since(start))}
		switch {
		case status >= http.StatusInternalServerError:
			reqLogger.Warn("request", fields...)
		default:
			reqLogger.Debug("request", fields...)
		}
	}
}
