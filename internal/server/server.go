// Package server is the gateway's HTTP front end: bearer authentication,
// permissive CORS, the per-request execution-id context, and graceful
// shutdown. The streaming RPC mechanics (session table, envelope parsing,
// initialization-first enforcement) are delegated to the transport
// library's streamable HTTP server.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"toolgate/internal/config"
	"toolgate/internal/logging"
	"toolgate/internal/workspace"
)

// headerExecutionID selects the workspace root for one call.
const headerExecutionID = "Execution-Id"

// Server is the HTTP front end.
type Server struct {
	cfg  *config.Config
	http *http.Server
}

// New wires the MCP server into an HTTP server with auth and CORS.
func New(cfg *config.Config, mcpSrv *mcpserver.MCPServer) *Server {
	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithHTTPContextFunc(executionContext),
	)

	mux := http.NewServeMux()
	mux.Handle("/mcp", Middleware(cfg.Token, streamable))

	return &Server{
		cfg: cfg,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           mux,
			ReadHeaderTimeout: 30 * time.Second,
			// Synchronous tool calls legitimately run up to the absolute
			// cap; idle and write timeouts must not cut them off.
			IdleTimeout:  30 * time.Minute,
			WriteTimeout: 0,
		},
	}
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	logging.Get(logging.CategoryHTTP).Info("Listening on %s", s.http.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// executionContext lifts the optional Execution-Id header into the
// request context for the duration of the call; the file and command
// tools resolve workspace roots from it.
func executionContext(ctx context.Context, r *http.Request) context.Context {
	if id := r.Header.Get(headerExecutionID); id != "" {
		logging.Get(logging.CategoryHTTP).Debug("Execution-Id: %s", id)
		return workspace.WithExecutionID(ctx, id)
	}
	return ctx
}

// Middleware wraps next with permissive CORS and bearer authentication.
// OPTIONS preflight is answered directly and never authenticated.
func Middleware(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		if msg, ok := checkBearer(r.Header.Get("Authorization"), token); !ok {
			logging.Get(logging.CategoryHTTP).Warn("Unauthorized request from %s: %s", r.RemoteAddr, msg)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "Unauthorized: " + msg,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// checkBearer validates the Authorization header against the configured
// token. Comparison is constant-time.
func checkBearer(header, token string) (string, bool) {
	if header == "" {
		return "missing Authorization header", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "malformed Authorization header", false
	}
	presented := header[len(prefix):]
	if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
		return "invalid token", false
	}
	return "", true
}

// setCORS applies the permissive CORS policy.
func setCORS(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Mcp-Session-Id, Last-Event-ID, Execution-Id")
	h.Set("Access-Control-Expose-Headers", "Mcp-Session-Id")
}
