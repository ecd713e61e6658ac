// Package httpapi exposes the HTTP surface: reseller send/balance endpoints,
// admin settlement endpoints and operational probes. Handlers stay thin and
// translate typed service errors into wire responses.
package httpapi

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"sms-panel/internal/auth"
	"sms-panel/internal/dispatch"
	"sms-panel/internal/ledger"
	"sms-panel/internal/rbac"
	"sms-panel/internal/topup"
	"sms-panel/pkg/logger"
	"sms-panel/pkg/utils"
)

// Dispatcher runs the send lifecycle.
type Dispatcher interface {
	Send(ctx context.Context, req dispatch.SendRequest) (dispatch.SendResult, error)
}

// Balances reads and adjusts account balances.
type Balances interface {
	GetAccount(ctx context.Context, accountID string) (ledger.Account, error)
	Credit(ctx context.Context, accountID string, amountMinor int64, reason, actor string) (int64, ledger.Adjustment, error)
	AdminDebit(ctx context.Context, accountID string, amountMinor int64, reason, actor string) (int64, ledger.Adjustment, error)
}

// TopupProcessor settles administrator top-up decisions.
type TopupProcessor interface {
	Process(ctx context.Context, req topup.ProcessRequest, actor string) (int64, error)
}

// TokenIssuer mints access tokens for resolved credentials.
type TokenIssuer interface {
	Issue(now time.Time, accountID, role string) (string, error)
}

// SubmitNotifier announces new top-up submissions to the ops channel.
type SubmitNotifier interface {
	TopupSubmitted(ctx context.Context, accountID, amount string)
}

type Server struct {
	dispatcher Dispatcher
	balances   Balances
	topups     TopupProcessor
	tokens     TokenIssuer
	keys       auth.KeyResolver
	notifier   SubmitNotifier
	tokenTTL   time.Duration

	db     *sql.DB
	rdb    *redis.Client
	logger *slog.Logger
	clock  func() time.Time
}

type ServerConfig struct {
	Dispatcher Dispatcher
	Balances   Balances
	Topups     TopupProcessor
	Tokens     TokenIssuer
	Keys       auth.KeyResolver
	Notifier   SubmitNotifier
	TokenTTL   time.Duration
	DB         *sql.DB
	Redis      *redis.Client
	Logger     *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	return &Server{
		dispatcher: cfg.Dispatcher,
		balances:   cfg.Balances,
		topups:     cfg.Topups,
		tokens:     cfg.Tokens,
		keys:       cfg.Keys,
		notifier:   cfg.Notifier,
		tokenTTL:   cfg.TokenTTL,
		db:         cfg.DB,
		rdb:        cfg.Redis,
		logger:     cfg.Logger,
		clock:      time.Now,
	}
}

// Router builds the gin engine with all routes and middleware attached.
func (s *Server) Router(credential gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(s.logger))

	r.GET("/healthz", s.handleHealthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.POST("/auth/token", s.handleIssueToken)

	authed := v1.Group("")
	authed.Use(credential)
	authed.POST("/sms/send", s.handleSend)
	authed.GET("/balance", s.handleBalance)
	authed.POST("/topups/notify", s.handleNotifyTopup)

	admin := authed.Group("/admin")
	admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
	admin.POST("/topups/process", s.handleProcessTopup)
	admin.POST("/adjustments", s.handleAdjustment)

	return r
}

const healthTimeout = 2 * time.Second

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if err := utils.HealthCheck(ctx, s.db, healthTimeout); err != nil {
		c.JSON(503, gin.H{"status": "degraded", "postgres": err.Error()})
		return
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
	}
	c.JSON(200, gin.H{"status": "ok"})
}
