// Package simulator serves synthetic load figures over the Prometheus
// HTTP v1 query API so the collector can run against it unchanged. Load
// follows configurable patterns per service, with control endpoints to
// inject CPU spikes, error bursts and cluster-wide emergencies.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OldStager01/service-autoscaler/internal/logger"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

type Config struct {
	Port     int
	Defaults ServiceSimConfig
}

type Simulator struct {
	config     Config
	services   map[string]*ServiceSim
	emergency  *emergency
	mu         sync.RWMutex
	httpServer *http.Server
}

// emergency pins the cluster-wide readings high until it expires.
type emergency struct {
	cpuPct float64
	memPct float64
	until  time.Time
}

func New(cfg Config) *Simulator {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}

	return &Simulator{
		config:   cfg,
		services: make(map[string]*ServiceSim),
	}
}

func cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Simulator) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", cors(s.healthHandler))
	mux.HandleFunc("/api/v1/query", cors(s.queryHandler))
	mux.HandleFunc("/services", cors(s.listServicesHandler))
	mux.HandleFunc("/services/", cors(s.serviceHandler))
	mux.HandleFunc("/spike", cors(s.spikeHandler))
	mux.HandleFunc("/errors", cors(s.errorsHandler))
	mux.HandleFunc("/pattern", cors(s.patternHandler))
	mux.HandleFunc("/emergency", cors(s.emergencyHandler))

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Infof("Simulator listening on %s", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Simulator server error: %v", err)
		}
	}()

	return nil
}

func (s *Simulator) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Simulator) GetOrCreateService(name string) *ServiceSim {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sim, exists := s.services[name]; exists {
		return sim
	}

	sim := NewServiceSim(name, s.config.Defaults)
	s.services[name] = sim

	logger.Infof("Created simulated service: %s", name)
	return sim
}

func (s *Simulator) GetService(name string) (*ServiceSim, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sim, exists := s.services[name]
	return sim, exists
}

// SetEmergency drives the cluster-wide CPU and memory readings to the
// given values for the duration, regardless of per-service load.
func (s *Simulator) SetEmergency(cpuPct, memPct float64, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.emergency = &emergency{
		cpuPct: cpuPct,
		memPct: memPct,
		until:  time.Now().Add(duration),
	}
}

func (s *Simulator) ClearEmergency() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emergency = nil
}

// Prometheus v1 API

// promResponse matches the subset of the v1 API envelope the official
// client parses for instant queries.
type promResponse struct {
	Status string   `json:"status"`
	Data   promData `json:"data"`
}

type promData struct {
	ResultType string       `json:"resultType"`
	Result     []promSample `json:"result"`
}

type promSample struct {
	Metric map[string]string `json:"metric"`
	Value  [2]interface{}    `json:"value"`
}

func vectorResponse(values ...float64) promResponse {
	ts := float64(time.Now().UnixMilli()) / 1000
	result := make([]promSample, 0, len(values))
	for _, v := range values {
		result = append(result, promSample{
			Metric: map[string]string{},
			Value:  [2]interface{}{ts, strconv.FormatFloat(v, 'f', -1, 64)},
		})
	}
	return promResponse{
		Status: "success",
		Data:   promData{ResultType: "vector", Result: result},
	}
}

var serviceLabelRe = regexp.MustCompile(`service="([^"]+)"`)

// queryHandler answers instant queries. Expressions are not evaluated
// as PromQL; they are classified by the metric names and service label
// the default query templates use, which is all the collector sends.
func (s *Simulator) queryHandler(w http.ResponseWriter, r *http.Request) {
	var expr string
	switch r.Method {
	case http.MethodGet:
		expr = r.URL.Query().Get("query")
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form body", http.StatusBadRequest)
			return
		}
		expr = r.PostForm.Get("query")
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if expr == "" {
		http.Error(w, "query parameter required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.answer(expr))
}

func (s *Simulator) answer(expr string) promResponse {
	now := time.Now()

	switch {
	case strings.HasPrefix(expr, "vector("):
		inner := strings.TrimSuffix(strings.TrimPrefix(expr, "vector("), ")")
		v, err := strconv.ParseFloat(inner, 64)
		if err != nil {
			v = 0
		}
		return vectorResponse(v)

	case strings.Contains(expr, "node_cpu_seconds_total"):
		return vectorResponse(s.clusterValue(models.SignalCPU, now))

	case strings.Contains(expr, "node_memory_"):
		return vectorResponse(s.clusterValue(models.SignalMemory, now))
	}

	m := serviceLabelRe.FindStringSubmatch(expr)
	if m == nil {
		return vectorResponse()
	}
	sim := s.GetOrCreateService(m[1])

	switch {
	case strings.Contains(expr, `status=~"5`):
		return vectorResponse(sim.Value(models.SignalErrorRate, now))
	case strings.Contains(expr, "_bucket"):
		return vectorResponse(sim.Value(models.SignalP95Latency, now))
	case strings.Contains(expr, "http_requests_total"):
		return vectorResponse(sim.Value(models.SignalRequestRate, now))
	case strings.Contains(expr, "container_cpu"):
		return vectorResponse(sim.Value(models.SignalCPU, now))
	case strings.Contains(expr, "container_memory"):
		return vectorResponse(sim.Value(models.SignalMemory, now))
	default:
		return vectorResponse()
	}
}

// clusterValue averages the signal across all simulated services, then
// lets an active emergency override the result upward.
func (s *Simulator) clusterValue(sig models.Signal, now time.Time) float64 {
	s.mu.RLock()
	sims := make([]*ServiceSim, 0, len(s.services))
	for _, sim := range s.services {
		sims = append(sims, sim)
	}
	em := s.emergency
	s.mu.RUnlock()

	var avg float64
	if len(sims) > 0 {
		var sum float64
		for _, sim := range sims {
			sum += sim.Value(sig, now)
		}
		avg = sum / float64(len(sims))
	}

	if em != nil && now.Before(em.until) {
		pinned := em.cpuPct
		if sig == models.SignalMemory {
			pinned = em.memPct
		}
		if pinned > avg {
			return pinned
		}
	}
	return avg
}

// Control endpoints

func (s *Simulator) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "load-simulator",
	})
}

func (s *Simulator) listServicesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	services := make([]map[string]interface{}, 0, len(s.services))
	for _, sim := range s.services {
		services = append(services, sim.Status())
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"services": services,
		"count":    len(services),
	})
}

type UpdateServiceRequest struct {
	Replicas *int     `json:"replicas"`
	BaseCPU  *float64 `json:"base_cpu"`
}

func (s *Simulator) serviceHandler(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/services/")
	if name == "" {
		http.Error(w, "service name required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		sim, exists := s.GetService(name)
		if !exists {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sim.Status())

	case http.MethodPut:
		var req UpdateServiceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		sim := s.GetOrCreateService(name)
		if req.Replicas != nil && *req.Replicas > 0 {
			sim.SetReplicas(*req.Replicas)
		}
		if req.BaseCPU != nil && *req.BaseCPU > 0 {
			sim.SetBaseCPU(*req.BaseCPU)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sim.Status())

	case http.MethodDelete:
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, exists := s.services[name]; !exists {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		delete(s.services, name)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "service deleted"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type SpikeRequest struct {
	Service   string  `json:"service"`
	CPUTarget float64 `json:"cpu_target"`
	Duration  string  `json:"duration"`
	RampUp    string  `json:"ramp_up"`
}

func (s *Simulator) spikeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SpikeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	duration, err := time.ParseDuration(req.Duration)
	if err != nil {
		duration = 5 * time.Minute
	}
	rampUp, err := time.ParseDuration(req.RampUp)
	if err != nil {
		rampUp = 30 * time.Second
	}

	sim := s.GetOrCreateService(req.Service)
	sim.InjectSpike(req.CPUTarget, duration, rampUp)

	logger.Infof("Injected spike on %s: target=%.1f%%, duration=%s",
		req.Service, req.CPUTarget, duration)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":    "spike injected",
		"service":    req.Service,
		"cpu_target": req.CPUTarget,
		"duration":   duration.String(),
		"ramp_up":    rampUp.String(),
	})
}

type ErrorBurstRequest struct {
	Service  string  `json:"service"`
	ErrorPct float64 `json:"error_pct"`
	Duration string  `json:"duration"`
}

func (s *Simulator) errorsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ErrorBurstRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	duration, err := time.ParseDuration(req.Duration)
	if err != nil {
		duration = 2 * time.Minute
	}

	sim := s.GetOrCreateService(req.Service)
	sim.InjectErrorBurst(req.ErrorPct, duration)

	logger.Infof("Injected error burst on %s: %.1f%% for %s",
		req.Service, req.ErrorPct, duration)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":   "error burst injected",
		"service":   req.Service,
		"error_pct": req.ErrorPct,
		"duration":  duration.String(),
	})
}

type PatternRequest struct {
	Service string `json:"service"`
	Pattern string `json:"pattern"` // "steady", "daily", "weekly", "random", "ramp", "sine"
}

func (s *Simulator) patternHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PatternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sim := s.GetOrCreateService(req.Service)
	sim.SetPattern(ParsePattern(req.Pattern))

	logger.Infof("Set pattern %s on %s", req.Pattern, req.Service)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "pattern set",
		"service": req.Service,
		"pattern": req.Pattern,
	})
}

type EmergencyRequest struct {
	CPUPct   float64 `json:"cpu_pct"`
	MemPct   float64 `json:"memory_pct"`
	Duration string  `json:"duration"`
	Clear    bool    `json:"clear"`
}

func (s *Simulator) emergencyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req EmergencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Clear {
		s.ClearEmergency()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "emergency cleared"})
		return
	}

	duration, err := time.ParseDuration(req.Duration)
	if err != nil {
		duration = 3 * time.Minute
	}

	s.SetEmergency(req.CPUPct, req.MemPct, duration)

	logger.Warnf("Cluster emergency injected: cpu=%.1f%% mem=%.1f%% for %s",
		req.CPUPct, req.MemPct, duration)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":    "emergency injected",
		"cpu_pct":    req.CPUPct,
		"memory_pct": req.MemPct,
		"duration":   duration.String(),
	})
}
