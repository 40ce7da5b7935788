package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// healthCheckTimeout bounds the whole probe fan-out.
const healthCheckTimeout = 2 * time.Second

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// HealthProbe is one dependency the worker needs, such as the database.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

// ProbeFunc adapts a ping-style function into a HealthProbe.
type ProbeFunc struct {
	ProbeName string
	Fn        func(ctx context.Context) error
}

// NewProbe returns a HealthProbe named name that calls fn.
func NewProbe(name string, fn func(ctx context.Context) error) ProbeFunc {
	return ProbeFunc{ProbeName: name, Fn: fn}
}

func (p ProbeFunc) Name() string { return p.ProbeName }

func (p ProbeFunc) Check(ctx context.Context) error { return p.Fn(ctx) }

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every probe concurrently under healthCheckTimeout.
// Any probe error or panic turns the response into a 503, as does a probe
// still running at the deadline.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	probes := s.HealthProbes
	if len(probes) == 0 {
		JSON(w, http.StatusOK, healthResponse{Status: statusHealthy})
		return
	}

	var mu sync.Mutex
	results := make([]*componentStatus, len(probes))

	var wg sync.WaitGroup
	for i, probe := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := runProbe(ctx, probe)

			st := &componentStatus{Status: statusHealthy}
			if err != nil {
				st = &componentStatus{Status: statusUnhealthy, Message: err.Error()}
			}
			mu.Lock()
			results[i] = st
			mu.Unlock()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	resp := healthResponse{
		Status:     statusHealthy,
		Components: make(map[string]componentStatus, len(probes)),
	}

	mu.Lock()
	for i, probe := range probes {
		st := results[i]
		if st == nil {
			st = &componentStatus{Status: statusUnhealthy, Message: "health check timed out"}
		}
		if st.Status != statusHealthy {
			resp.Status = statusUnhealthy
		}
		resp.Components[probe.Name()] = *st
	}
	mu.Unlock()

	code := http.StatusOK
	if resp.Status != statusHealthy {
		code = http.StatusServiceUnavailable
	}
	JSON(w, code, resp)
}

func runProbe(ctx context.Context, p HealthProbe) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return p.Check(ctx)
}
