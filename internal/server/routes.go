package server

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/conneroisu/blockfactory/internal/config"
)

const maxBodyBytes = 1 << 20

// Handler builds the router.
func (s *PreviewServer) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(securityHeaders)
	if len(s.config.Server.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.Server.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/", s.handleIndex)
	r.Get("/ws", s.ws.HandleWebSocket)
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(limitBody)

		r.Get("/session", s.handleSession)
		r.Post("/reset", s.handleReset)
		r.Post("/reload", s.handleReload)
		r.Put("/mode", s.handleMode)

		r.Route("/elements", func(r chi.Router) {
			r.Get("/", s.handleElements)
			r.Post("/categories", s.handleCreateCategory)
			r.Post("/separators", s.handleAddSeparator)
			r.Post("/standard", s.handleLoadStandard)
			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", s.handleUpdateElement)
				r.Delete("/", s.handleRemoveElement)
				r.Post("/select", s.handleSelect)
			})
		})

		r.Route("/canvas", func(r chi.Router) {
			r.Get("/", s.handleCanvas)
			r.Put("/", s.handleReplaceCanvas)
			r.Post("/blocks", s.handleAppendBlocks)
			r.Delete("/blocks/{id}", s.handleDeleteBlock)
			r.Put("/blocks/{id}/template", s.handleMarkTemplate)
			r.Delete("/blocks/{id}/template", s.handleUnmarkTemplate)
		})

		r.Get("/options", s.handleGetOptions)
		r.Put("/options", s.handleSetOptions)

		r.Get("/export/{what}", s.handleExport)
		r.Post("/import/{what}", s.handleImport)

		r.Get("/preview", s.handlePreview)
	})

	return r
}

func (s *PreviewServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// securityHeaders sets a per-request CSP nonce that the page's inline
// script and style carry.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce, err := newNonce()
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		h := w.Header()
		h.Set("Content-Security-Policy", fmt.Sprintf(
			"default-src 'self'; script-src 'nonce-%[1]s'; style-src 'nonce-%[1]s'; connect-src 'self' ws: wss:; object-src 'none'; base-uri 'none'; frame-ancestors 'none'",
			nonce,
		))
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")

		next.ServeHTTP(w, r.WithContext(templ.WithNonce(r.Context(), nonce)))
	})
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// originPolicy admits the server's own origins and the configured ones.
type originPolicy struct {
	allowed map[string]struct{}
}

func newOriginPolicy(cfg *config.Config) *originPolicy {
	p := &originPolicy{allowed: make(map[string]struct{})}
	port := cfg.Server.Port
	for _, host := range []string{cfg.Server.Host, "localhost", "127.0.0.1"} {
		if host == "" || host == "0.0.0.0" {
			continue
		}
		p.allowed[fmt.Sprintf("http://%s:%d", host, port)] = struct{}{}
	}
	for _, o := range cfg.Server.AllowedOrigins {
		p.allowed[o] = struct{}{}
	}
	return p
}

func (p *originPolicy) IsAllowedOrigin(origin string) bool {
	_, ok := p.allowed[origin]
	return ok
}
