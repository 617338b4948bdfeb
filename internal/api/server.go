package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/map/config", h.MapSettings)
		r.Post("/map/events", h.MapEvents)
		r.Get("/stations", h.SearchStations)
		r.Get("/stations/nearby", h.NearbyStations)
		r.Get("/stations/{key}/intervals", h.StationIntervals)
		r.Get("/route", h.Route)
	})
	return r
}

type Server struct {
	server  *http.Server
	handler *Handler
}

func NewServer(listenAddr string, h *Handler, allowedOrigins []string) *Server {
	return &Server{
		server: &http.Server{
			Addr:              listenAddr,
			Handler:           NewRouter(h, allowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		},
		handler: h,
	}
}

// Serve listens until ctx is done, then drains in-flight requests and
// background chat lookups.
func (s *Server) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()
	log.Printf("api listening on %s", s.server.Addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Println("api shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.server.Shutdown(shutdownCtx)
	s.handler.Wait()
	return err
}
