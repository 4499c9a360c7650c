// Package main runs the damage log engine as a local server for desktop clients.
// Clients use the REST API and the WebSocket feed on HTTP_ADDR (localhost:8090).
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kimhsiao/damagelog/backend/cmd/desktop/handlers"
	"github.com/kimhsiao/damagelog/backend/internal/app"
	"github.com/kimhsiao/damagelog/backend/internal/config"
	"github.com/kimhsiao/damagelog/backend/internal/logging"
)

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	app.InitLogging(cfg)
	gin.SetMode(gin.ReleaseMode)

	a, err := app.Build(ctx, cfg)
	if err != nil {
		logging.Error("Failed to start", err, nil)
		return 1
	}
	defer a.Close()

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		logging.Error("Failed to listen", err, map[string]interface{}{"addr": cfg.HTTPAddr})
		return 1
	}
	logging.Info("Desktop server listening", map[string]interface{}{"addr": ln.Addr().String()})

	if err := newServer(a).serve(ctx, ln); err != nil {
		logging.Error("Server stopped", err, nil)
		return 1
	}
	logging.Info("Desktop server stopped", nil)
	return 0
}

type server struct {
	app    *app.App
	hub    *WSHub
	router *gin.Engine
}

// newServer wires the hub to the engine and status observer and builds the router.
func newServer(a *app.App) *server {
	hub := NewWSHub()
	a.Engine.AddEventHandler(hub)
	a.Observer.Subscribe(hub.PublishSnapshot)
	return &server{app: a, hub: hub, router: newRouter(a, hub)}
}

func newRouter(a *app.App, hub *WSHub) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = handlers.MaxUploadBytes
	r.Use(requestID(), requestLogger(), gin.Recovery())

	captureHandler := handlers.NewCaptureHandler(a.Capture)
	syncHandler := handlers.NewSyncHandler(a.Observer, a.Monitor, a.Store)

	api := r.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "damagelog-desktop",
			"online":  a.Monitor.Online(),
			"remote":  a.Config.RemoteConfigured(),
		})
	})
	api.POST("/entries", captureHandler.Create)
	api.GET("/sync/status", syncHandler.GetStatus)
	api.POST("/sync/trigger", syncHandler.Trigger)
	api.POST("/connectivity", syncHandler.SetConnectivity)
	api.DELETE("/queue", syncHandler.ClearQueue)

	if a.Metrics != nil {
		r.GET("/metrics", gin.WrapH(a.Metrics.Handler()))
	}
	r.GET("/ws", hub.Handle)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": handlers.ErrorBody{Code: "NOT_FOUND", Message: "route not found"}})
	})
	return r
}

// serve starts the background engine and the HTTP server, and shuts both down
// when ctx is cancelled.
func (s *server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	s.app.Start(gctx)

	g.Go(func() error {
		return s.hub.Run(gctx)
	})
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Debug("request", map[string]interface{}{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"latency":    time.Since(start).String(),
			"request_id": c.GetString("request_id"),
		})
	}
}
