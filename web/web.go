// Package web provides the HTTP server of the paralegal panel: routing,
// cookie sessions and the background token sweep.
package web

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/paralegal-agent/paralegal/config"
	"github.com/paralegal-agent/paralegal/database"
	"github.com/paralegal-agent/paralegal/logger"
	"github.com/paralegal-agent/paralegal/util/common"
	"github.com/paralegal-agent/paralegal/util/metrics"
	"github.com/paralegal-agent/paralegal/web/controller"
	"github.com/paralegal-agent/paralegal/web/job"
	"github.com/paralegal-agent/paralegal/web/middleware"
	"github.com/paralegal-agent/paralegal/web/network"
	"github.com/paralegal-agent/paralegal/web/service"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

const sessionCookieName = "paralegal"

// Options are the dependencies and settings of a Server.
type Options struct {
	DB        *database.DB
	Server    config.ServerConfig
	Tokens    config.TokenConfig
	Bootstrap config.Bootstrap
	Mailer    service.MailSender
}

// Server is the web server with its services and scheduled jobs.
type Server struct {
	httpServer *http.Server
	listener   net.Listener

	cfg      config.ServerConfig
	tokenCfg config.TokenConfig

	users    *service.UserService
	tokens   *service.TokenService
	auth     *service.AuthService
	accounts *service.AccountService

	limiter  *middleware.RateLimiter
	registry *prometheus.Registry
	cron     *cron.Cron
}

// NewServer wires the services on top of opts.DB. The caller owns the database
// handle and closes it after Stop.
func NewServer(opts Options) *Server {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	users := service.NewUserService(opts.DB)
	tokens := service.NewTokenService(opts.DB, service.WithTokenMetrics(collector))
	limit := middleware.DefaultRateLimitConfig()
	if opts.Server.LoginRate > 0 {
		limit.RequestsPerMinute = opts.Server.LoginRate
	}
	limit.Metrics = collector
	return &Server{
		cfg:      opts.Server,
		tokenCfg: opts.Tokens,
		users:    users,
		tokens:   tokens,
		auth:     service.NewAuthService(users, opts.Bootstrap).WithMetrics(collector),
		accounts: service.NewAccountService(users, tokens, opts.Mailer, opts.Tokens),
		limiter:  middleware.NewRateLimiter(limit),
		registry: registry,
	}
}

// initRouter initializes Gin, registers middleware and controllers and returns the engine.
func (s *Server) initRouter() *gin.Engine {
	if config.IsDebug() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.DefaultWriter = io.Discard
		gin.DefaultErrorWriter = io.Discard
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	// Forwarded client IPs are believed only from configured proxies.
	if err := engine.SetTrustedProxies(s.cfg.TrustedProxies); err != nil {
		logger.Warning("trusted proxies err:", err)
		_ = engine.SetTrustedProxies(nil)
	}
	engine.Use(gin.Recovery())
	if s.cfg.Domain != "" {
		engine.Use(middleware.DomainValidatorMiddleware(s.cfg.Domain))
	}

	basePath := s.cfg.BasePath
	if basePath == "" {
		basePath = "/"
	}

	store := cookie.NewStore([]byte(s.cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	engine.Use(sessions.Sessions(sessionCookieName, store))
	engine.Use(gzip.Gzip(gzip.DefaultCompression))
	engine.Use(func(c *gin.Context) {
		c.Set("base_path", basePath)
		if s.cfg.BaseURL != "" {
			c.Set("base_url", s.cfg.BaseURL)
		}
		c.Next()
	})

	g := engine.Group(basePath)
	throttle := s.limiter.Middleware()
	controller.NewIndexController(g, s.auth, throttle, s.cfg.SessionMaxAge)
	controller.NewAccountController(g, s.accounts, throttle)
	controller.NewUserAdminController(g, s.auth, s.users, s.accounts)

	if s.cfg.Metrics {
		engine.GET("/metrics", gin.WrapH(metrics.Handler(s.registry)))
	}

	engine.NoRoute(func(c *gin.Context) {
		c.AbortWithStatus(http.StatusNotFound)
	})
	return engine
}

// startTask schedules background jobs.
func (s *Server) startTask() error {
	spec := s.tokenCfg.SweepSpec
	if spec == "" {
		spec = "@hourly"
	}
	cleanup := job.NewTokenCleanupJob(s.tokens)
	if _, err := s.cron.AddJob(spec, cleanup); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@every 10m", s.limiter.Cleanup); err != nil {
		return err
	}
	// Clear whatever expired while the server was down.
	go cleanup.Run()
	return nil
}

// Start initializes and starts the web server.
func (s *Server) Start() (err error) {
	defer func() {
		if err != nil {
			_ = s.Stop()
		}
	}()

	s.auth.WarnIfOpen()

	s.cron = cron.New(cron.WithLocation(time.UTC))
	if err = s.startTask(); err != nil {
		return err
	}
	s.cron.Start()

	engine := s.initRouter()

	listenAddr := net.JoinHostPort(s.cfg.Listen, strconv.Itoa(s.cfg.Port))
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	if s.cfg.HasTLS() {
		var cert tls.Certificate
		cert, err = tls.LoadX509KeyPair(s.cfg.CertFile, s.cfg.KeyFile)
		if err != nil {
			_ = listener.Close()
			return err
		}
		tlsCfg := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		listener = network.NewAutoHttpsListener(listener)
		listener = tls.NewListener(listener, tlsCfg)
		logger.Info("Web server running HTTPS on", listener.Addr())
	} else {
		logger.Info("Web server running HTTP on", listener.Addr())
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("web server stopped:", err)
		}
	}()
	return nil
}

// Stop shuts down the HTTP server and the cron scheduler.
func (s *Server) Stop() error {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	var err1, err2 error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err1 = s.httpServer.Shutdown(ctx)
	}
	if s.listener != nil && s.httpServer == nil {
		err2 = s.listener.Close()
	}
	return common.Combine(err1, err2)
}
