package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danmuck/simlink/internal/logging"
)

// AdminConfig describes the optional admin HTTP surface of one process.
type AdminConfig struct {
	Addr        string
	Node        string
	CORSOrigins []string
	// Status is rendered as JSON by GET /session. Nil answers 404.
	Status func() any
}

type Admin struct {
	cfg     AdminConfig
	router  *gin.Engine
	started time.Time
}

func NewAdmin(cfg AdminConfig) *Admin {
	RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(ComponentLogger("admin")))
	r.Use(RequestMetricsMiddleware(cfg.Node))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a := &Admin{cfg: cfg, router: r, started: time.Now()}
	a.registerRoutes()
	return a
}

func (a *Admin) Router() *gin.Engine {
	return a.router
}

func (a *Admin) registerRoutes() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"node":   a.cfg.Node,
			"uptime": time.Since(a.started).String(),
		})
	})
	a.router.GET("/session", func(c *gin.Context) {
		if a.cfg.Status == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no session"})
			return
		}
		c.JSON(http.StatusOK, a.cfg.Status())
	})
	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Serve listens on cfg.Addr until ctx ends, then shuts down gracefully.
func (a *Admin) Serve(ctx context.Context) error {
	addr, err := NormalizeAdminAddr(a.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Addr: addr, Handler: a.router, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		logging.Infof("observability.Admin.Serve node=%s addr=%s", a.cfg.Node, addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("admin: serve %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("admin: shutdown: %w", err)
		}
		return nil
	}
}

// NormalizeAdminAddr resolves hostnames to a stable IP endpoint. An empty
// host binds loopback only.
func NormalizeAdminAddr(rawAddr string) (string, error) {
	addr := strings.TrimSpace(rawAddr)
	if addr == "" {
		return "", fmt.Errorf("admin addr required")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid admin addr %q", addr)
	}
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	if port == "" {
		return "", fmt.Errorf("invalid admin addr %q", addr)
	}
	if host == "" || strings.EqualFold(host, "localhost") {
		return net.JoinHostPort("127.0.0.1", port), nil
	}
	if ip := net.ParseIP(host); ip != nil {
		return net.JoinHostPort(ip.String(), port), nil
	}
	ips, err := net.LookupIP(host)
	if err != nil || len(ips) == 0 {
		return "", fmt.Errorf("resolve admin host %q: %w", host, err)
	}
	for i := range ips {
		if v4 := ips[i].To4(); v4 != nil {
			return net.JoinHostPort(v4.String(), port), nil
		}
	}
	return net.JoinHostPort(ips[0].String(), port), nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
