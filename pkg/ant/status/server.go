// Package status serves engine counters over HTTP for debugging a live
// stick.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/openant/ant/pkg/ant/engine"
)

type Server struct {
	eng  *engine.Engine
	srv  *http.Server
	port int
}

func NewServer(port int, eng *engine.Engine) *Server {
	return &Server{
		eng:  eng,
		port: port,
		srv:  &http.Server{Addr: fmt.Sprintf(":%d", port)},
	}
}

func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

func (s *Server) Run(ctx context.Context) error {
	router := httprouter.New()
	router.GET("/stats", s.handleStats)
	router.GET("/queue", s.handleQueue)
	s.srv.Handler = router

	go func() {
		<-ctx.Done()
		s.srv.Shutdown(context.Background())
	}()

	if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.eng.Stats())
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"pending": s.eng.QueuedFrames()})
}
