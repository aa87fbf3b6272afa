package monitor

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"sandboxdemo/internal/shared/logger"
	"sandboxdemo/internal/shared/settings"
	"sandboxdemo/internal/shared/types"
)

// Server is the handle of a running monitor endpoint.
type Server struct {
	httpServer *http.Server
}

// Shutdown stops the monitor and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// basicAuthMiddleware enforces HTTP Basic Authentication when both
// web_user and web_password are configured. With either empty the
// handler is served as-is.
func basicAuthMiddleware(next http.Handler, user, pass string) http.Handler {
	if user == "" || pass == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized.\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StartServer launches the monitor API when web_port is set. It returns
// nil when the monitor is disabled or its port cannot be bound; the
// responder keeps serving either way.
func StartServer(
	wg *sync.WaitGroup,
	cfg *types.Config,
	settingsManager *settings.SettingsManager,
	provider StatusProvider,
	hub *Hub,
) *Server {
	if cfg.LocalConf.WebPort <= 0 {
		log.Println("[Monitor] Monitor API is disabled (web_port is 0 or not set).")
		return nil
	}

	handler := NewHandler(settingsManager, provider, hub)
	mux := http.NewServeMux()

	webUser := cfg.LocalConf.WebUser
	webPassword := cfg.LocalConf.WebPassword

	// --- authenticated APIs ---
	mux.Handle("/api/requests", basicAuthMiddleware(http.HandlerFunc(handler.HandleRequests), webUser, webPassword))
	mux.Handle("/api/settings", basicAuthMiddleware(http.HandlerFunc(handler.HandleGetSettings), webUser, webPassword))
	mux.Handle("/api/settings/", basicAuthMiddleware(http.HandlerFunc(handler.HandleUpdateSettings), webUser, webPassword)) // catches /api/settings/{module}

	// --- WebSocket endpoint (public) ---
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	})

	// Public status API.
	mux.HandleFunc("/api/status", handler.HandleStatus)

	rootHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "demosrv monitor")
		fmt.Fprintln(w, "  GET  /api/status")
		fmt.Fprintln(w, "  GET  /api/requests")
		fmt.Fprintln(w, "  GET  /api/settings")
		fmt.Fprintln(w, "  POST /api/settings/{module}")
		fmt.Fprintln(w, "  WS   /ws")
	})
	mux.Handle("/", basicAuthMiddleware(rootHandler, webUser, webPassword))

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.LocalConf.WebPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("!!! FAILED to start monitor API on %s: %v", addr, err)
		return nil
	}

	logger.Info().Msgf("SUCCESS: Monitor API is listening on http://%s", addr)

	srv := &Server{httpServer: &http.Server{Handler: mux}}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Monitor server error: %v", err)
		}
		log.Println("Monitor server stopped.")
	}()

	return srv
}
