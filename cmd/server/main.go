package main

// @title           Property Valuation Report API
// @version         0.1.0
// @description     基于 Go(Gin) 的房产估值报表服务：查询源房产与已勾选的可比房产，生成 PDF/CSV 报表。
// @schemes         http https
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"valuations/internal/config"
	"valuations/internal/handlers"
	"valuations/internal/metrics"
	"valuations/internal/middlewares"
	"valuations/internal/services"
	"valuations/internal/storage"
)

// main 为服务入口：加载配置、初始化日志/存储/服务、注册路由并启动 HTTP 服务。
func main() {
	configPath := flag.String("config", "", "path to config.yaml/config.json (default: ./config.{yaml,yml,json})")
	addr := flag.String("addr", "", "listen address, overrides http_addr")
	workers := flag.Int("workers", 0, "concurrent pdf render workers, overrides workers")
	flag.Parse()

	// 配置结构化日志格式
	log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)

	cfg := config.Load()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			log.WithError(err).Fatal("configuration error")
		}
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("configuration error")
	}
	if cfg.Env == "dev" {
		log.SetLevel(log.DebugLevel)
	}
	log.WithFields(log.Fields{
		"env":             cfg.Env,
		"http_addr":       cfg.HTTPAddr,
		"workers":         cfg.Workers,
		"property_url":    cfg.Upstream.PropertyURL,
		"comparisons_url": cfg.Upstream.ComparisonsURL,
		"mysql_enabled":   cfg.MySQL.Enable,
		"mysql_dsn":       cfg.MySQL.DSNMasked(),
		"redis_enabled":   cfg.Redis.Enable,
		"redis_addr":      cfg.Redis.Addr,
		"auth_enabled":    cfg.Auth.JWTSecret != "",
		"trusted_proxies": cfg.TrustedProxies,
	}).Info("configuration loaded")

	// 初始化存储（均为可选）
	var db *gorm.DB
	if cfg.MySQL.Enable {
		var err error
		db, err = storage.InitMySQL(cfg)
		if err != nil {
			log.WithError(err).Fatal("failed to connect mysql")
		}
		defer storage.CloseMySQL(db)
	}

	var rdb *redis.Client
	if cfg.Redis.Enable {
		var err error
		rdb, err = storage.InitRedis(cfg)
		if err != nil {
			log.WithError(err).Fatal("failed to connect redis")
		}
		defer func() { _ = rdb.Close() }()
	}

	// 初始化核心服务
	var cache *services.ResponseCache
	var limiter middlewares.Counter
	if rdb != nil {
		if cfg.Cache.Enable {
			cache = services.NewResponseCache(rdb, cfg.Cache.Prefix, cfg.Cache.TTL)
		}
		limiter = rdb
	}
	upstream := services.NewUpstreamClient(cfg, cache)
	propertySvc := services.NewPropertyService(upstream)
	csvSvc := services.NewCSVReportService(upstream, cfg.Report.Location())
	reportSvc, err := services.NewReportService(cfg.Report.Location())
	if err != nil {
		log.WithError(err).Fatal("load report templates")
	}
	pdf := services.NewChromePDFRenderer(cfg)
	defer pdf.Close()
	auditSvc := services.NewAuditService(db)

	// HTTP 路由与中间件
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middlewares.RequestID())
	router.Use(middlewares.RequestLogger())
	router.Use(middlewares.SecurityHeaders(cfg))
	router.Use(metrics.Handler())

	h := handlers.New(cfg, propertySvc, csvSvc, reportSvc, pdf, auditSvc, limiter)
	h.RegisterRoutes(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("starting http server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()

	// 优雅退出
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	// PDF 渲染可能较慢，退出等待时间取渲染超时与 10s 的较大值
	grace := 10 * time.Second
	if cfg.Report.RenderTimeout > grace {
		grace = cfg.Report.RenderTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server shutdown")
	} else {
		log.Info("server stopped")
	}
}
