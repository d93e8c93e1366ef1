package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/caffeineduck/hostscript/engine"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start an HTTP server controlling one engine",
		Long: `Start an HTTP server around a single engine. The engine connects on
startup and disconnects on shutdown.

Endpoints:
  POST   /connect      Connect (409 if already connected)
  POST   /disconnect   Disconnect (409 if already disconnected)
  POST   /run          Run every loaded script once
  POST   /exec         Run {"code": "..."} once
  GET    /state        Host state value and engine state
  GET    /health       Health check`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	return cmd
}

type execRequest struct {
	Code string `json:"code"`
}

type resultResponse struct {
	Name       string `json:"name"`
	Status     int    `json:"status"`
	Output     string `json:"output"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type runResponse struct {
	RunID     string           `json:"run_id"`
	Attempted int              `json:"attempted"`
	Failed    int              `json:"failed"`
	Results   []resultResponse `json:"results"`
	State     int64            `json:"state"`
}

type stateResponse struct {
	State  int64  `json:"state"`
	Engine string `json:"engine"`
}

func toResultResponse(res engine.Result) resultResponse {
	resp := resultResponse{
		Name:       res.Name,
		Status:     res.Status,
		Output:     res.Output,
		DurationMs: res.Duration.Milliseconds(),
	}
	if res.Error != nil {
		resp.Error = res.Error.Error()
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// newServer exposes s over HTTP. Script output is returned in responses
// only.
func newServer(s *session) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /connect", func(w http.ResponseWriter, r *http.Request) {
		err := s.engine.Connect(context.WithoutCancel(r.Context()))
		switch {
		case errors.Is(err, engine.ErrAlreadyConnected):
			http.Error(w, err.Error(), http.StatusConflict)
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	mux.HandleFunc("POST /disconnect", func(w http.ResponseWriter, r *http.Request) {
		err := s.engine.Disconnect()
		switch {
		case errors.Is(err, engine.ErrAlreadyDisconnected):
			http.Error(w, err.Error(), http.StatusConflict)
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	mux.HandleFunc("POST /run", func(w http.ResponseWriter, r *http.Request) {
		summary, err := s.engine.RunAll(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}

		resp := runResponse{
			RunID:     summary.RunID,
			Attempted: summary.Attempted,
			Failed:    summary.Failed,
			Results:   make([]resultResponse, 0, len(summary.Results)),
			State:     s.state.Get(),
		}
		for _, res := range summary.Results {
			resp.Results = append(resp.Results, toResultResponse(res))
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("POST /exec", func(w http.ResponseWriter, r *http.Request) {
		var req execRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Code == "" {
			http.Error(w, "code required", http.StatusBadRequest)
			return
		}

		res := s.engine.RunCode(r.Context(), req.Code)
		if errors.Is(res.Error, engine.ErrNotConnected) {
			http.Error(w, res.Error.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusOK, toResultResponse(res))
	})

	mux.HandleFunc("GET /state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, stateResponse{
			State:  s.state.Get(),
			Engine: s.engine.State().String(),
		})
	})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return mux
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")

	s, err := newSession(cmd, io.Discard)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.engine.Connect(ctx); err != nil {
		return err
	}
	defer s.engine.Disconnect()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           newServer(s),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
