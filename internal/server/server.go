// Package server is the preview server. It exposes one editing session
// over a JSON API, pushes every preview refresh to browsers over a
// websocket, and reloads the session when the project file changes on
// disk.
//
// The controller is single-threaded. Every request, and every reload from
// the watcher, runs under one session mutex, so the server behaves as the
// single event loop the controller expects.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/conneroisu/blockfactory/internal/config"
	"github.com/conneroisu/blockfactory/internal/controller"
	"github.com/conneroisu/blockfactory/internal/errors"
	"github.com/conneroisu/blockfactory/internal/logging"
	"github.com/conneroisu/blockfactory/internal/project"
	"github.com/conneroisu/blockfactory/internal/watcher"
	"github.com/conneroisu/blockfactory/internal/websocket"
)

const shutdownTimeout = 5 * time.Second

// Option configures a PreviewServer.
type Option func(*PreviewServer)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *PreviewServer) { s.logger = l }
}

// WithProject names the project file the session was loaded from. It is
// reloaded on change when watching is enabled, and by POST /api/reload.
func WithProject(path string) Option {
	return func(s *PreviewServer) { s.projectPath = path }
}

// PreviewServer serves one editing session.
type PreviewServer struct {
	config      *config.Config
	ctrl        *controller.Controller
	projectPath string
	logger      logging.Logger
	errHandler  *errors.ErrorHandler

	// mu serializes every use of ctrl.
	mu sync.Mutex

	ws          *websocket.Manager
	unsubscribe func()

	watcher      *watcher.FileWatcher
	watchedMu    sync.RWMutex
	watchedFiles map[string]struct{}

	serverMutex  sync.Mutex
	httpServer   *http.Server
	shutdownOnce sync.Once
}

// New creates a server around ctrl. The server takes over publishing the
// controller's preview snapshots to browsers.
func New(cfg *config.Config, ctrl *controller.Controller, opts ...Option) (*PreviewServer, error) {
	if cfg == nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "server requires a configuration")
	}
	if ctrl == nil {
		return nil, errors.NewInvariantError(errors.ErrCodeInternalError, "server requires a controller")
	}

	s := &PreviewServer{
		config:       cfg,
		ctrl:         ctrl,
		watchedFiles: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.logger = s.logger.WithComponent("server")
	s.errHandler = errors.NewErrorHandler(s.logger)

	policy := ctrl.Preview()
	s.ws = websocket.NewManager(
		newOriginPolicy(cfg),
		websocket.WithLogger(s.logger),
		websocket.WithLatest(policy.Last),
	)
	s.unsubscribe = policy.Subscribe(s.ws.BroadcastSnapshot)

	return s, nil
}

// Start serves until ctx is done or the listener fails.
func (s *PreviewServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return errors.NewIOError(errors.ErrCodeInternalError, "listen on "+s.config.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *PreviewServer) Serve(ctx context.Context, ln net.Listener) error {
	if s.config.Project.Watch && s.projectPath != "" {
		if err := s.startWatcher(ctx); err != nil {
			_ = ln.Close()
			return err
		}
	}

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	url := "http://" + ln.Addr().String()
	s.logger.Info(ctx, "Preview server listening", "url", url, "project", s.projectPath)
	if s.config.Server.Open {
		go s.openBrowser(url)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}

// Reload re-reads the project file and replaces the session with it. On
// error the session is left as the failed step left it and every browser
// is told about the error.
func (s *PreviewServer) Reload(ctx context.Context) error {
	if s.projectPath == "" {
		return errors.NewValidationError(errors.ErrCodeProjectInvalid, "the session was not loaded from a project file")
	}

	op := logging.StartOperation(s.logger, "reload")
	f, err := project.Load(s.projectPath)
	if err == nil {
		s.mu.Lock()
		err = f.Apply(ctx, s.ctrl)
		s.mu.Unlock()
	}
	if err != nil {
		op.EndWithError(ctx, err)
		s.errHandler.Handle(ctx, err)
		s.ws.BroadcastError(err)
		return err
	}
	op.End(ctx, "project", s.projectPath)

	if s.watcher != nil {
		s.watchPaths(ctx, f)
	}
	return nil
}

func (s *PreviewServer) startWatcher(ctx context.Context) error {
	fw, err := watcher.NewFileWatcher(s.config.Project.Debounce, s.logger)
	if err != nil {
		return errors.NewIOError(errors.ErrCodeInternalError, "create file watcher", err)
	}
	fw.AddFilter(watcher.NoEditorTempFilter)
	fw.AddFilter(s.isWatched)
	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		for _, ev := range events {
			s.logger.Debug(ctx, "Project file changed", "path", ev.Path, "type", ev.Type.String())
		}
		return s.Reload(ctx)
	})
	s.watcher = fw

	s.watch(ctx, s.projectPath)
	if f, err := project.Load(s.projectPath); err == nil {
		s.watchPaths(ctx, f)
	}
	return fw.Start(ctx)
}

// watchPaths follows the documents a project references, which may change
// between reloads.
func (s *PreviewServer) watchPaths(ctx context.Context, f *project.File) {
	for _, p := range f.Paths() {
		s.watch(ctx, p)
	}
}

func (s *PreviewServer) watch(ctx context.Context, path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	s.watchedMu.Lock()
	_, known := s.watchedFiles[abs]
	s.watchedFiles[abs] = struct{}{}
	s.watchedMu.Unlock()
	if known {
		return
	}
	if err := s.watcher.AddFile(abs); err != nil {
		s.logger.Warn(ctx, err, "Failed to watch file", "path", abs)
	}
}

func (s *PreviewServer) isWatched(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	s.watchedMu.RLock()
	defer s.watchedMu.RUnlock()
	_, ok := s.watchedFiles[abs]
	return ok
}

func (s *PreviewServer) openBrowser(url string) {
	time.Sleep(100 * time.Millisecond)

	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
	if err != nil {
		s.logger.Warn(context.Background(), err, "Failed to open browser", "url", url)
	}
}

// Shutdown stops the watcher, the websocket hub and the HTTP server.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down preview server")

		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		if s.watcher != nil {
			if err := s.watcher.Stop(); err != nil {
				s.logger.Warn(ctx, err, "Failed to stop file watcher")
			}
		}
		if err := s.ws.Shutdown(ctx); err != nil {
			shutdownErr = err
		}

		s.serverMutex.Lock()
		server := s.httpServer
		s.serverMutex.Unlock()
		if server != nil {
			if err := server.Shutdown(ctx); err != nil {
				shutdownErr = err
			}
		}
	})
	return shutdownErr
}
