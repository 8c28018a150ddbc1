// Package server orchestrates all components: COMMS connection, database,
// worker stores and dispatcher, and the HTTP surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5/pgxpool"
	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/void-worker/internal/config"
	"github.com/morezero/void-worker/pkg/appconfig"
	"github.com/morezero/void-worker/pkg/bootstrap"
	"github.com/morezero/void-worker/pkg/commsutil"
	"github.com/morezero/void-worker/pkg/db"
	"github.com/morezero/void-worker/pkg/dispatcher"
	"github.com/morezero/void-worker/pkg/events"
	"github.com/morezero/void-worker/pkg/protocol"
	"github.com/morezero/void-worker/pkg/transport"
)

const logPrefix = "server:server"

// The Postgres repository is the persisted appconfig.Store.
var _ appconfig.Store = (*db.Repository)(nil)

// Server is the void-worker orchestrator.
type Server struct {
	cfg    *config.Config
	codec  protocol.Codec
	ctx    context.Context
	cancel context.CancelFunc

	worker *Worker
	checks map[string]healthChecker

	ns    *commsserver.Server
	nc    *comms.Conn
	sub   *comms.Subscription
	peers *dispatcher.Peers
	pool  *pgxpool.Pool

	listener   net.Listener
	httpServer *http.Server
	logFile    io.Closer
}

// Run loads configuration (from the environment and envFiles), starts the
// server, blocks until a shutdown signal, then cleans up.
func Run(envFiles ...string) error {
	cfg, err := config.LoadConfig(envFiles...)
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	logFile := setupLogging(cfg)

	slog.Info(fmt.Sprintf("%s - Starting %s", logPrefix, cfg.COMMSName))

	s, err := New(context.Background(), cfg, nil)
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return err
	}
	s.logFile = logFile
	if err := s.Start(); err != nil {
		s.Shutdown(context.Background())
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	return s.Shutdown(context.Background())
}

// New connects every dependency the configuration asks for and builds the
// worker. Start serves it. params may carry test doubles; nil uses the defaults.
func New(ctx context.Context, cfg *config.Config, params *WorkerParams) (s *Server, err error) {
	codec, err := protocol.CodecByName(cfg.WireCodec)
	if err != nil {
		return nil, err
	}
	s = &Server{cfg: cfg, codec: codec, checks: make(map[string]healthChecker)}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	defer func() {
		if err != nil {
			s.Shutdown(context.Background())
			s = nil
		}
	}()

	// Step 1: Defaults file
	defaults, err := bootstrap.LoadDefaults(cfg.DefaultsFile)
	if err != nil {
		return s, fmt.Errorf("%s - failed to load defaults: %w", logPrefix, err)
	}

	// Step 2: COMMS (embedded broker and/or client connection)
	commsURL := cfg.COMMSURL
	if cfg.COMMSEmbedded {
		ns, err := commsutil.StartEmbedded(cfg.COMMSEmbeddedHost, cfg.COMMSEmbeddedPort)
		if err != nil {
			return s, fmt.Errorf("%s - failed to start embedded COMMS: %w", logPrefix, err)
		}
		s.ns = ns
		commsURL = ns.ClientURL()
	}
	var publisher events.EventPublisher
	if commsURL != "" {
		nc, err := commsutil.Connect(commsURL, cfg.COMMSName)
		if err != nil {
			return s, fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
		}
		s.nc = nc
		s.checks["comms"] = func(context.Context) error {
			if !nc.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}
		publisher = events.NewCommsPublisher(nc, &events.CommsPublisherOpts{GlobalChangeSubject: cfg.ChangeEventSubject, Codec: codec})
		slog.Info(fmt.Sprintf("%s - Connected to COMMS at %s", logPrefix, commsURL))
	}

	// Step 3: Database (optional)
	var store appconfig.Store
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return s, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		s.pool = pool
		s.checks["database"] = pool.Ping

		if cfg.RunMigrations {
			migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
			if err != nil {
				return s, fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
			}
			if err := db.RunMigrations(ctx, pool, migrations); err != nil {
				return s, fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
			}
		}
		store = db.NewRepository(pool)
	}

	// Step 4: Worker
	p := WorkerParams{}
	if params != nil {
		p = *params
	}
	p.Cfg = cfg
	if p.Defaults == nil {
		p.Defaults = defaults
	}
	if p.ConfigStore == nil {
		p.ConfigStore = store
	}
	if p.Publisher == nil {
		p.Publisher = publisher
	}
	worker, err := NewWorker(ctx, p)
	if err != nil {
		return s, err
	}
	s.worker = worker
	return s, nil
}

// Worker returns the wired worker.
func (s *Server) Worker() *Worker {
	return s.worker
}

// Start subscribes the RPC subject and starts the HTTP listener.
func (s *Server) Start() error {
	if s.nc != nil {
		subject := s.cfg.RPCSubject
		if subject == "" {
			subject = commsutil.SubjectWorkerRPC
		}
		s.peers = s.worker.Dispatcher.NewPeers(s.ctx)
		sub, err := transport.ServeNATS(s.nc, subject, s.codec, s.peers.Handle)
		if err != nil {
			return fmt.Errorf("%s - failed to serve %s: %w", logPrefix, subject, err)
		}
		s.sub = sub
		slog.Info(fmt.Sprintf("%s - Serving RPC on %s (%s)", logPrefix, subject, s.codec.Name()))
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("%s - failed to listen on %s: %w", logPrefix, s.cfg.ListenAddr(), err)
	}
	s.listener = ln
	s.httpServer = &http.Server{Handler: s.newEngine()}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, ln.Addr()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - %s is ready", logPrefix, s.cfg.COMMSName))
	return nil
}

// Addr returns the HTTP listen address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// COMMSURL returns the URL clients use to reach the broker, or "" without COMMS.
func (s *Server) COMMSURL() string {
	if s.nc == nil {
		return ""
	}
	return s.nc.ConnectedUrl()
}

// Shutdown stops accepting work, cancels running invocations and releases
// every connection. It returns all close errors together.
func (s *Server) Shutdown(ctx context.Context) error {
	var result *multierror.Error

	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			result = multierror.Append(result, fmt.Errorf("unsubscribe: %w", err))
		}
	}
	if s.peers != nil {
		s.peers.Shutdown()
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("http shutdown: %w", err))
		}
	}
	s.cancel()
	if s.nc != nil {
		if err := s.nc.Flush(); err != nil && !errors.Is(err, comms.ErrConnectionClosed) {
			result = multierror.Append(result, fmt.Errorf("comms flush: %w", err))
		}
		s.nc.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	commsutil.StopEmbedded(s.ns)
	if s.logFile != nil {
		if err := s.logFile.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("log file: %w", err))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		slog.Warn(fmt.Sprintf("%s - Shutdown finished with errors: %v", logPrefix, err))
		return fmt.Errorf("%s - shutdown: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}
