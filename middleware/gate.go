package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"cynix/models"
	"cynix/services"
	"cynix/utils"
)

const (
	HeaderAPIKey             = "X-API-Key"
	HeaderCynixEvent         = "X-Cynix-Event"
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// Request outcomes recorded in the request log.
const (
	OutcomeAdmitted          = "admitted"
	OutcomeRejectedAuth      = "rejected_auth"
	OutcomeRejectedRateLimit = "rejected_rate_limit"
	OutcomeRejectedForbidden = "rejected_forbidden"
)

// APIPrefix is the path prefix that requires a credential.
const APIPrefix = "/api/v1"

const (
	ctxWallet        = "cynix.wallet"
	ctxIdentity      = "cynix.identity"
	ctxAccess        = "cynix.access"
	ctxDecision      = "cynix.decision"
	ctxCredentialErr = "cynix.credential_error"
)

// Gate runs credential verification and rate limiting for every request
// and appends one request-log entry once the response status is known.
// Install Middleware before the CORS middleware and Enforce after it.
type Gate struct {
	verifier *services.CredentialVerifier
	limiter  *services.RateLimiter
	logs     *services.RequestLogger
	access   services.AccessChecker
	geo      *utils.GeoResolver
	now      func() time.Time
	logger   *zap.Logger
}

func NewGate(verifier *services.CredentialVerifier, limiter *services.RateLimiter, logs *services.RequestLogger,
	access services.AccessChecker, geo *utils.GeoResolver, logger *zap.Logger) *Gate {
	return &Gate{
		verifier: verifier,
		limiter:  limiter,
		logs:     logs,
		access:   access,
		geo:      geo,
		now:      time.Now,
		logger:   logger,
	}
}

// Credential reads X-API-Key, falling back to a Bearer Authorization header.
func Credential(req *http.Request) string {
	if key := strings.TrimSpace(req.Header.Get(HeaderAPIKey)); key != "" {
		return key
	}
	auth := req.Header.Get(echo.HeaderAuthorization)
	if scheme, token, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// OutcomeFor maps a final response status to a request outcome.
func OutcomeFor(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return OutcomeRejectedAuth
	case http.StatusTooManyRequests:
		return OutcomeRejectedRateLimit
	case http.StatusForbidden:
		return OutcomeRejectedForbidden
	default:
		return OutcomeAdmitted
	}
}

// Middleware is installed app-wide. It verifies the credential and runs the
// rate limiter for every request, sets the X-RateLimit headers, and records
// one request-log entry after the response is final, panics included.
// Rejection is left to Enforce so that CORS headers still reach rejected
// responses.
func (g *Gate) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := g.now()
			req := c.Request()
			ctx := req.Context()

			claims, credErr := g.verifier.Verify(Credential(req))

			// Rate limit by wallet when the credential is good, by IP otherwise.
			identity := c.RealIP()
			if credErr == nil {
				identity = claims.WalletAddress
				c.Set(ctxWallet, claims.WalletAddress)
			} else {
				c.Set(ctxCredentialErr, credErr)
			}
			c.Set(ctxIdentity, identity)

			decision, err := g.limiter.Admit(ctx, identity, start)
			if err != nil {
				g.logger.Warn("Rate limiter unavailable, admitting request",
					zap.String("identity", identity),
					zap.Error(err))
				decision = g.limiter.Open(start)
			}
			c.Set(ctxDecision, decision)
			h := c.Response().Header()
			h.Set(HeaderRateLimitLimit, strconv.FormatInt(decision.Limit, 10))
			h.Set(HeaderRateLimitRemaining, strconv.FormatInt(decision.Remaining, 10))
			h.Set(HeaderRateLimitReset, strconv.FormatInt(decision.ResetAt, 10))

			defer func() {
				if r := recover(); r != nil {
					g.logger.Error("Recovered from panic",
						zap.Any("panic", r),
						zap.String("path", req.URL.Path),
						zap.Stack("stack"))
					c.Error(echo.NewHTTPError(http.StatusInternalServerError))
				}
				g.record(ctx, c, identity, start)
			}()

			if err := next(c); err != nil {
				c.Error(err)
			}
			return nil
		}
	}
}

// Enforce rejects what Middleware decided against: a bad credential on an
// APIPrefix path with 401, then an exhausted window with 429. It runs after
// the CORS middleware, which answers preflights itself.
func (g *Gate) Enforce() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if credErr, ok := c.Get(ctxCredentialErr).(error); ok && Protected(c.Request().URL.Path) {
				return credErr
			}
			if decision, ok := c.Get(ctxDecision).(services.Decision); ok && !decision.Admitted {
				utils.RateLimitRejections.Inc()
				return models.NewAppError(models.ErrRateLimitExceeded, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

// Protected reports whether path needs a valid credential.
func Protected(path string) bool {
	return path == APIPrefix || strings.HasPrefix(path, APIPrefix+"/")
}

func (g *Gate) record(ctx context.Context, c echo.Context, identity string, start time.Time) {
	req := c.Request()
	res := c.Response()
	outcome := OutcomeFor(res.Status)
	utils.RequestsTotal.WithLabelValues(outcome).Inc()

	ip := c.RealIP()
	g.logs.LogRequest(ctx, models.RequestLogEntry{
		RequestID:  res.Header().Get(echo.HeaderXRequestID),
		Timestamp:  start.UTC(),
		Method:     req.Method,
		Path:       req.URL.Path,
		StatusCode: res.Status,
		Duration:   g.now().Sub(start).Seconds(),
		ClientIP:   ip,
		Country:    g.geo.Country(ip),
		UserAgent:  req.UserAgent(),
		Identity:   identity,
		Outcome:    outcome,
	})
}

// RequireTier rejects requests whose wallet lacks tier. The wallet is the
// wallet_address query parameter, or the credential's wallet.
func (g *Gate) RequireTier(tier models.Tier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			wallet := c.QueryParam("wallet_address")
			if wallet == "" {
				wallet = WalletFrom(c)
			}

			info, err := g.access.CheckAccess(c.Request().Context(), wallet)
			if err != nil {
				return err
			}
			if !info.Has(tier) {
				g.logger.Info("Access denied",
					zap.String("wallet", wallet),
					zap.String("tier", string(tier)),
					zap.Uint64("total_tokens", info.TotalTokens),
					zap.Bool("degraded", info.Degraded()))
				return models.InsufficientAccess(tier)
			}
			c.Set(ctxAccess, info)
			return next(c)
		}
	}
}

// WalletFrom returns the wallet of the verified credential.
func WalletFrom(c echo.Context) string {
	w, _ := c.Get(ctxWallet).(string)
	return w
}

// IdentityFrom returns the rate-limit identity of the request.
func IdentityFrom(c echo.Context) string {
	id, _ := c.Get(ctxIdentity).(string)
	return id
}

// AccessFrom returns the access info checked by RequireTier, if any.
func AccessFrom(c echo.Context) *models.WalletAccessInfo {
	info, _ := c.Get(ctxAccess).(*models.WalletAccessInfo)
	return info
}
