package main // Entry point package

import (
    "context"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "path/filepath"
    "syscall"
    "time"

    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "github.com/prometheus/client_golang/prometheus"
    "go.uber.org/zap"

    "github.com/iliyamo/vat-ticketing/internal/config"
    "github.com/iliyamo/vat-ticketing/internal/database"
    "github.com/iliyamo/vat-ticketing/internal/handler"
    "github.com/iliyamo/vat-ticketing/internal/identity"
    "github.com/iliyamo/vat-ticketing/internal/logger"
    "github.com/iliyamo/vat-ticketing/internal/metrics"
    "github.com/iliyamo/vat-ticketing/internal/middleware"
    "github.com/iliyamo/vat-ticketing/internal/queue"
    "github.com/iliyamo/vat-ticketing/internal/repository"
    "github.com/iliyamo/vat-ticketing/internal/router"
    "github.com/iliyamo/vat-ticketing/internal/service"
    "github.com/iliyamo/vat-ticketing/internal/session"
    "github.com/iliyamo/vat-ticketing/internal/utils"
)

// ticketLogPath is where the ticket.issued consumer appends events.
const ticketLogPath = "logs/tickets.log"

func main() {
    cfg, err := config.Load()
    if err != nil {
        log.Fatalf("config: %v", err)
    }
    zl, err := logger.New(cfg.LogLevel, cfg.IsProd())
    if err != nil {
        log.Fatalf("logger: %v", err)
    }
    defer func() { _ = zl.Sync() }()

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    if err := run(ctx, cfg, zl); err != nil {
        zl.Fatalw("server stopped", "error", err)
    }
}

func run(ctx context.Context, cfg config.Config, zl *zap.SugaredLogger) error {
    db, err := database.Open(cfg.DatabaseURL)
    if err != nil {
        return err
    }
    defer db.Close()
    if err := database.EnsureSchema(ctx, db); err != nil {
        return err
    }

    rdb := config.NewRedisClient()
    if rdb != nil {
        defer rdb.Close()
        zl.Infow("redis enabled")
    }

    reg := prometheus.DefaultRegisterer
    m := metrics.New(reg)

    gwOpts := []identity.Option{identity.WithLogger(zl)}
    if rdb != nil {
        gwOpts = append(gwOpts, identity.WithTokenCache(identity.NewRedisTokenCache(rdb, "vat:m2m")))
    } else {
        gwOpts = append(gwOpts, identity.WithTokenCache(identity.NewMemoryTokenCache()))
    }
    gw := identity.New(cfg.Identity, cfg.PublicURL+"/callback", gwOpts...)

    var events service.EventPublisher = service.NopPublisher{}
    if cfg.AMQPURL != "" {
        events = service.NewAMQPPublisher(cfg.AMQPURL, zl)
        consumer := queue.NewConsumer(cfg.AMQPURL, ticketLogPath, zl)
        go func() {
            if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
                zl.Errorw("ticket consumer stopped", "error", err)
            }
        }()
    }

    images := repository.NewQRImageRepo(filepath.Join(cfg.StaticDir, "qr"), cfg.PublicURL+"/static/qr")
    tickets := service.NewTicketService(service.Deps{
        Store:     repository.NewTicketRepo(db),
        Tokens:    gw,
        Renderer:  utils.DefaultQRRenderer,
        Images:    images,
        Events:    events,
        Metrics:   m,
        Log:       zl,
        PublicURL: cfg.PublicURL,
    })
    sessions := session.NewStore(cfg.SecretKey, cfg.SessionTTL, cfg.IsProd())

    tpl, err := handler.NewTemplates()
    if err != nil {
        return err
    }

    e := echo.New()
    e.HideBanner = true
    e.Renderer = tpl
    e.Use(echomw.Recover())
    e.Use(echomw.RequestID())
    e.Use(middleware.RequestLogger(zl.Named("http")))

    router.Setup(e, router.Deps{
        Sessions:  sessions,
        Home:      handler.NewHomeHandler(tickets, sessions, zl),
        Auth:      handler.NewAuthHandler(gw, sessions, cfg.SecretKey, cfg.PublicURL, m, zl.Named("auth")),
        Tickets:   handler.NewTicketHandler(tickets, images, zl),
        Gatherer:  prometheus.DefaultGatherer,
        StaticDir: cfg.StaticDir,
        RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, zl),
        Cache:     middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
    })

    addr := ":" + cfg.Port
    zl.Infow("listening", "addr", addr, "env", cfg.Env, "public_url", cfg.PublicURL)

    errCh := make(chan error, 1)
    go func() {
        if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
            errCh <- err
        }
        close(errCh)
    }()

    select {
    case err := <-errCh:
        return err
    case <-ctx.Done():
    }

    zl.Infow("shutting down")
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    return e.Shutdown(shutdownCtx)
}
