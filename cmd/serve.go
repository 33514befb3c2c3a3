package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/company-search/internal/cache"
	"github.com/sells-group/company-search/internal/config"
	"github.com/sells-group/company-search/internal/monitoring"
	"github.com/sells-group/company-search/internal/provider"
	"github.com/sells-group/company-search/internal/resilience"
	"github.com/sells-group/company-search/internal/search"
	"github.com/sells-group/company-search/internal/summary"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the company search HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics := search.NewMetrics(reg)

		env, err := initApp(ctx, cfg, "serve", search.WithMetrics(metrics))
		if err != nil {
			return err
		}
		defer env.Close()

		registerCollectors(reg, env)
		env.Cache.StartSweeper(ctx, cfg.SweepInterval())
		startMonitoring(ctx, env, cfg.Monitoring)

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           buildRouter(env, cfg.Server, reg),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// registerCollectors adds scrape-time collectors for breaker state and, when
// the cache is in-process, its occupancy and hit rate.
func registerCollectors(reg prometheus.Registerer, env *appEnv) {
	reg.MustRegister(search.NewBreakerCollector(env.Breakers))
	if ms, ok := env.Cache.Store().(*cache.MemoryStore); ok {
		reg.MustRegister(search.NewMemoryCacheCollector(ms))
	}
}

// startMonitoring runs the circuit health checker when a webhook is set.
func startMonitoring(ctx context.Context, env *appEnv, mc config.MonitoringConfig) *monitoring.Checker {
	if mc.WebhookURL == "" {
		return nil
	}
	collector := monitoring.NewCollector(env.Breakers, env.Registry, summary.BreakerName)
	checker := monitoring.NewChecker(collector, monitoring.NewAlerter(mc), mc)
	go checker.Run(ctx)
	return checker
}

// api serves the HTTP endpoints over one appEnv.
type api struct {
	env *appEnv
}

// buildRouter wires middleware and routes. gatherer backs /metrics; nil
// disables the endpoint.
func buildRouter(env *appEnv, sc config.ServerConfig, gatherer prometheus.Gatherer) http.Handler {
	a := &api{env: env}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := sc.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		if sc.RequestTimeoutSecs > 0 {
			r.Use(middleware.Timeout(time.Duration(sc.RequestTimeoutSecs) * time.Second))
		}
		r.Get("/search", a.search)
		r.Get("/similar", a.similar)
		r.Get("/summaries", a.listSummaries)
		r.Post("/summaries/{domain}", a.summarize)
		r.Get("/breakers", a.breakers)
	})

	return r
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) search(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.env.Search.Run(r.Context(), provider.Query{
		Text:    r.URL.Query().Get("q"),
		Filters: filters,
	})
	if err != nil {
		if eris.Is(err, search.ErrEmptyQuery) {
			writeError(w, http.StatusBadRequest, "q is required")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) similar(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.env.Search.Similar(r.Context(), r.URL.Query().Get("domain"), filters)
	if err != nil {
		if eris.Is(err, search.ErrEmptySeed) {
			writeError(w, http.StatusBadRequest, "domain is required")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) listSummaries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"summaries": nonNilSummaries(a.env.Summaries.Cached(r.Context())),
	})
}

func (a *api) summarize(w http.ResponseWriter, r *http.Request) {
	s, err := a.env.Summaries.Summarize(r.Context(), chi.URLParam(r, "domain"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, s)
	case eris.Is(err, summary.ErrEmptyDomain):
		writeError(w, http.StatusBadRequest, "domain is required")
	case eris.Is(err, summary.ErrUnavailable), eris.Is(err, summary.ErrCircuitOpen):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		zap.L().Warn("summarize failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "summary generation failed")
	}
}

// breakerView is one provider's circuit as reported by /v1/breakers.
type breakerView struct {
	Provider  string                  `json:"provider"`
	Available bool                    `json:"available"`
	State     resilience.CircuitState `json:"state"`
}

func (a *api) breakers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"failure_threshold": a.env.Breakers.Config().FailureThreshold,
		"open_duration_ms":  a.env.Breakers.Config().OpenDuration.Milliseconds(),
		"providers":         breakerViews(a.env),
	})
}

// breakerViews lists every registered provider in registry order, then the
// summary model, then any other tracked circuit.
func breakerViews(env *appEnv) []breakerView {
	seen := make(map[string]bool)
	var out []breakerView
	for _, p := range env.Registry.All() {
		seen[p.Name()] = true
		out = append(out, breakerView{Provider: p.Name(), Available: p.Available(), State: env.Breakers.State(p.Name())})
	}
	for _, name := range append([]string{summary.BreakerName}, env.Breakers.Providers()...) {
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, breakerView{Provider: name, Available: true, State: env.Breakers.State(name)})
	}
	return out
}

// parseFilters reads filter query parameters. List parameters may repeat or
// hold comma-separated values.
func parseFilters(r *http.Request) (provider.Filters, error) {
	q := r.URL.Query()
	f := provider.Filters{
		Industries: splitParam(q["industry"]),
		Regions:    splitParam(q["region"]),
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"min_employees", &f.MinEmployees},
		{"max_employees", &f.MaxEmployees},
		{"limit", &f.Limit},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return provider.Filters{}, eris.Errorf("%s must be a non-negative integer", p.name)
		}
		*p.dst = n
	}
	return f, nil
}

func splitParam(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func nonNilSummaries(s []summary.Summary) []summary.Summary {
	if s == nil {
		return []summary.Summary{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger logs each request with zap.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
