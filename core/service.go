package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Capability describes an endpoint the service offers. The list is served at
// /api/capabilities so clients can discover what the router accepts.
type Capability struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Endpoint    string   `json:"endpoint"`
	Method      string   `json:"method"`
	InputTypes  []string `json:"input_types"`
	OutputTypes []string `json:"output_types"`
}

// HealthResponse is the body of the health endpoint. Checks maps each
// registered dependency to "healthy" or its error.
type HealthResponse struct {
	Status  HealthStatus      `json:"status"`
	Service string            `json:"service"`
	ID      string            `json:"id"`
	Checks  map[string]string `json:"checks,omitempty"`
}

type healthCheck struct {
	name  string
	check func(context.Context) error
}

// Service owns the HTTP server: route registration, the middleware chain and
// the start/stop lifecycle.
type Service struct {
	ID           string
	Name         string
	Capabilities []Capability
	Logger       Logger
	Telemetry    Telemetry
	Config       *Config

	server     *http.Server
	mux        *http.ServeMux
	middleware []func(http.Handler) http.Handler

	healthChecks       []healthCheck
	registeredPatterns map[string]bool
	serverStarted      bool
	mu                 sync.RWMutex
}

const healthCheckTimeout = 2 * time.Second

// NewService creates a service from configuration. A nil config uses DefaultConfig.
func NewService(config *Config) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Name == "" {
		config.Name = "docrouter"
	}
	if config.ID == "" {
		config.ID = fmt.Sprintf("%s-%s", config.Name, uuid.New().String()[:8])
	}

	return &Service{
		ID:                 config.ID,
		Name:               config.Name,
		Capabilities:       []Capability{},
		Logger:             &NoOpLogger{},
		Telemetry:          &NoOpTelemetry{},
		Config:             config,
		mux:                http.NewServeMux(),
		registeredPatterns: make(map[string]bool),
	}
}

// AddHealthCheck adds a dependency probe to the health endpoint. A failing
// probe turns the response into 503 "unhealthy".
func (s *Service) AddHealthCheck(name string, check func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthChecks = append(s.healthChecks, healthCheck{name: name, check: check})
}

// HandleFunc registers a handler for the given pattern. Patterns may carry a
// method ("POST /process"). It must be called before Start.
func (s *Service) HandleFunc(pattern string, handler http.HandlerFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.serverStarted {
		return fmt.Errorf("cannot register handler for pattern %s: %w", pattern, ErrAlreadyStarted)
	}
	if s.registeredPatterns[pattern] {
		return fmt.Errorf("handler for pattern %s: %w", pattern, ErrAlreadyRegistered)
	}

	s.mux.HandleFunc(pattern, handler)
	s.registeredPatterns[pattern] = true

	s.Logger.Debug("Registered handler", map[string]interface{}{
		"pattern": pattern,
	})
	return nil
}

// RegisterCapability records a capability for the discovery listing
func (s *Service) RegisterCapability(cap Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Capabilities = append(s.Capabilities, cap)
	s.Logger.Info("Registered capability", map[string]interface{}{
		"name":     cap.Name,
		"endpoint": cap.Endpoint,
	})
}

// Use appends middleware. Later middleware wraps earlier middleware, so the
// last one added sees the request first.
func (s *Service) Use(mw func(http.Handler) http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middleware = append(s.middleware, mw)
}

// Handler registers the built-in endpoints and returns the full middleware
// chain. Start calls it; tests can use it with httptest directly.
func (s *Service) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()

	healthPath := "GET " + s.Config.HTTP.HealthCheckPath
	if s.Config.HTTP.HealthCheckPath != "" && !s.registeredPatterns[healthPath] {
		s.mux.HandleFunc(healthPath, s.handleHealth)
		s.registeredPatterns[healthPath] = true
	}

	capabilitiesPath := "GET " + PathCapabilities
	if !s.registeredPatterns[capabilitiesPath] {
		s.mux.HandleFunc(capabilitiesPath, s.handleCapabilities)
		s.registeredPatterns[capabilitiesPath] = true
	}

	var handler http.Handler = s.mux
	handler = BodyLimitMiddleware(s.Config.HTTP.MaxUploadBytes)(handler)
	handler = RecoveryMiddleware(s.Logger)(handler)
	handler = LoggingMiddleware(s.Logger, s.Config.Development.Enabled)(handler)
	if s.Config.HTTP.CORS.Enabled {
		handler = CORSMiddleware(&s.Config.HTTP.CORS)(handler)
	}
	for _, mw := range s.middleware {
		handler = mw(handler)
	}
	return handler
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	checks := append([]healthCheck(nil), s.healthChecks...)
	s.mu.RUnlock()

	resp := HealthResponse{Status: HealthHealthy, Service: s.Name, ID: s.ID}
	status := http.StatusOK
	if len(checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp.Checks = make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				resp.Checks[c.name] = err.Error()
				resp.Status = HealthUnhealthy
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.name] = string(HealthHealthy)
		}
	}
	WriteJSON(w, status, resp, s.Logger)
}

func (s *Service) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	caps := make([]Capability, len(s.Capabilities))
	copy(caps, s.Capabilities)
	s.mu.RUnlock()

	WriteJSON(w, http.StatusOK, caps, s.Logger)
}

// Start listens on the configured address and blocks until the server stops.
// http.ErrServerClosed is returned as nil.
func (s *Service) Start() error {
	addr := net.JoinHostPort(s.Config.Address, fmt.Sprintf("%d", s.Config.Port))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(l)
}

// Serve runs the server on an existing listener
func (s *Service) Serve(l net.Listener) error {
	handler := s.Handler()

	s.mu.Lock()
	if s.serverStarted {
		s.mu.Unlock()
		_ = l.Close()
		return ErrAlreadyStarted
	}
	s.server = &http.Server{
		Handler:        handler,
		ReadTimeout:    s.Config.HTTP.ReadTimeout,
		WriteTimeout:   s.Config.HTTP.WriteTimeout,
		IdleTimeout:    s.Config.HTTP.IdleTimeout,
		MaxHeaderBytes: s.Config.HTTP.MaxHeaderBytes,
	}
	server := s.server
	s.serverStarted = true
	s.mu.Unlock()

	s.Logger.Info("Starting HTTP server", map[string]interface{}{
		"address": l.Addr().String(),
		"cors":    s.Config.HTTP.CORS.Enabled,
	})

	if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server within the configured shutdown timeout
func (s *Service) Stop(ctx context.Context) error {
	s.mu.RLock()
	server := s.server
	s.mu.RUnlock()

	if server == nil {
		return nil
	}

	shutdownCtx := ctx
	if s.Config.HTTP.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, s.Config.HTTP.ShutdownTimeout)
		defer cancel()
	}

	s.Logger.Info("Stopping HTTP server", map[string]interface{}{
		"id": s.ID,
	})
	return server.Shutdown(shutdownCtx)
}
