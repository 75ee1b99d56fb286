package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"market-pulse/src/config"
	"market-pulse/src/interfaces"
	"market-pulse/src/logger"
	"market-pulse/src/metrics"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

type Server struct {
	Config      *config.Config
	Logger      *logger.Logger
	Registry    *Registry
	Broadcaster *Broadcaster
	Dispatcher  *Dispatcher

	engine     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader
	pump       pumpSettings
	onDemand   interfaces.IOnDemand
	cacheName  string
	gatherer   prometheus.Gatherer

	mu       sync.Mutex
	sessions map[string]*session
	wg       sync.WaitGroup
}

// session ties a registered connection to its transport and request context
type session struct {
	conn   *Connection
	client *Client
	cancel context.CancelFunc
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

// NewServer wires the HTTP engine. onDemand may be nil in which case request
// frames are answered with an error frame. gatherer may be nil to disable
// the /metrics endpoint.
func NewServer(cfg *config.Config, log *logger.Logger, registry *Registry, broadcaster *Broadcaster,
	onDemand interfaces.IOnDemand, cacheName string, m *metrics.Metrics, gatherer prometheus.Gatherer) *Server {
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		Config:      cfg,
		Logger:      log,
		Registry:    registry,
		Broadcaster: broadcaster,
		Dispatcher:  NewDispatcher(registry, broadcaster, onDemand, log.With("dispatcher"), m),
		engine:      gin.New(),
		pump: newPumpSettings(
			time.Duration(cfg.WebSocket.WriteWaitSeconds)*time.Second,
			time.Duration(cfg.WebSocket.PongWaitSeconds)*time.Second,
			cfg.WebSocket.MaxMessageSize,
			cfg.WebSocket.SendBuffer,
		),
		onDemand:  onDemand,
		cacheName: cacheName,
		gatherer:  gatherer,
		sessions:  make(map[string]*session),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(s.cors)
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/connections", s.getConnections)
	if s.gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------

// Handler exposes the engine, mainly for httptest
func (s *Server) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// CORS
// -----------------------------------------------------------------------------

func (s *Server) allowedOrigin(origin string) bool {
	if len(s.Config.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range s.Config.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.allowedOrigin(origin)
}

func (s *Server) cors(c *gin.Context) {
	origin := c.Request.Header.Get("Origin")
	if origin != "" && s.allowedOrigin(origin) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
	c.Writer.Header().Set("Access-Control-Allow-Methods", "OPTIONS, GET")

	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}

	c.Next()
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Start blocks serving HTTP until Stop is called
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	s.mu.Lock()
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	srv := s.httpServer
	s.mu.Unlock()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Stop closes every connection with a going-away code so clients reconnect
// later, then shuts the HTTP listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.cancel()
		sess.client.CloseWith(websocket.CloseGoingAway)
	}

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		s.Dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.Logger.Warning("Shutdown deadline reached with connections still open")
	}
	return err
}

// -----------------------------------------------------------------------------
// WebSocket
// -----------------------------------------------------------------------------

func (s *Server) handleWebSocket(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Error("Failed to upgrade WebSocket: %v", err)
		return
	}

	client := newClient(ws, s.pump, s.Logger)
	conn := s.Registry.Register(client)
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{conn: conn, client: client, cancel: cancel}

	s.mu.Lock()
	s.sessions[conn.ID] = sess
	s.mu.Unlock()

	s.Logger.Info("Client connected: %s (total %d)", conn.ID, s.Registry.Len())

	// greet before any broadcast can interleave on this connection's queue
	status := StatusFrame(conn.Info(), s.Broadcaster.Now().UnixMilli())
	if err := s.Broadcaster.SendTo(conn.ID, status); err != nil {
		s.Logger.Warning("Failed to send status to %s: %v", conn.ID, err)
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
	go func() {
		defer s.wg.Done()
		defer s.closeSession(sess)
		client.readPump(func(data []byte) {
			s.Dispatcher.HandleClientMessage(ctx, conn, data)
		})
	}()
}

// -----------------------------------------------------------------------------

// closeSession is the single teardown path once the read side ends
func (s *Server) closeSession(sess *session) {
	sess.cancel()

	s.mu.Lock()
	delete(s.sessions, sess.conn.ID)
	s.mu.Unlock()

	if s.Registry.Deregister(sess.conn.ID) {
		s.Logger.Info("Client disconnected: %s (total %d)", sess.conn.ID, s.Registry.Len())
	}
	sess.client.Close()
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *Server) getHealth(c *gin.Context) {
	ticks := gin.H{}
	if s.onDemand != nil {
		for cadence, t := range s.onDemand.LastTicks() {
			if t.IsZero() {
				ticks[cadence] = nil
				continue
			}
			ticks[cadence] = t.UnixMilli()
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": s.Registry.Len(),
		"cache":       s.cacheName,
		"cadences":    ticks,
		"timestamp":   s.Broadcaster.Now().UnixMilli(),
	})
}

// -----------------------------------------------------------------------------

func (s *Server) getConnections(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connections": s.Registry.Snapshot(),
	})
}
