// Package httpstatus is a read-only diagnostics HTTP endpoint that
// republishes motionloop's status snapshot for operator tooling (DROs,
// web pendants, shop-floor dashboards). It is ambient observability, not
// the NML-style command/status transport C9 and C10 already cover: no
// handler here ever accepts a command. Grounded on nasa-jpl-golaborate's
// generichttp package, which wraps a device's in-process status struct
// behind a small chi.Router the same way.
package httpstatus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"cncmotion/motionloop"
)

// Source is the subset of *motionloop.Loop this package depends on.
type Source interface {
	Latest() motionloop.Status
}

// Server serves /status, /joints, and /errors as JSON, plus a
// rate-limited /stream Server-Sent-Events feed of the same status.
type Server struct {
	router *chi.Mux
	loop   Source

	// streamLimiter bounds how often /stream pushes a new event,
	// independent of how fast the servo tick runs, so a slow client
	// can't cause backpressure into the servo domain.
	streamLimiter *rate.Limiter
}

// New builds a Server polling loop for status. streamInterval is the
// minimum spacing between /stream events (e.g. 50ms for a 20Hz feed).
func New(loop Source, streamInterval time.Duration) *Server {
	s := &Server{
		loop:          loop,
		streamLimiter: rate.NewLimiter(rate.Every(streamInterval), 1),
	}
	r := chi.NewRouter()
	r.Get("/status", s.handleStatus)
	r.Get("/joints", s.handleJoints)
	r.Get("/errors", s.handleErrors)
	r.Get("/stream", s.handleStream)
	s.router = r
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.loop.Latest())
}

type jointStatus struct {
	Index    int     `json:"index"`
	Position float64 `json:"position"`
	Ferrored bool    `json:"ferrored"`
	Homed    bool    `json:"homed"`
}

func (s *Server) handleJoints(w http.ResponseWriter, r *http.Request) {
	st := s.loop.Latest()
	joints := make([]jointStatus, 0, len(st.JointPos))
	for i := range st.JointPos {
		joints = append(joints, jointStatus{
			Index:    i,
			Position: st.JointPos[i],
			Ferrored: st.JointFerrored[i],
			Homed:    st.Homed[i],
		})
	}
	writeJSON(w, joints)
}

type errorStatus struct {
	MotionError bool `json:"motion_error"`
	AnyFerrored bool `json:"any_ferrored"`
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	st := s.loop.Latest()
	es := errorStatus{MotionError: st.MotionError}
	for _, f := range st.JointFerrored {
		if f {
			es.AnyFerrored = true
			break
		}
	}
	writeJSON(w, es)
}

// handleStream pushes one JSON status event per streamLimiter tick until
// the client disconnects. Rate-limited independently of the servo
// domain: a stalled reader just misses events, it never blocks Tick.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	for {
		if err := s.streamLimiter.Wait(ctx); err != nil {
			return
		}
		data, err := json.Marshal(s.loop.Latest())
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Run starts an HTTP server on addr and blocks until ctx is canceled or
// ListenAndServe returns a non-shutdown error.
func Run(ctx context.Context, addr string, s *Server) error {
	srv := &http.Server{Addr: addr, Handler: s}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
