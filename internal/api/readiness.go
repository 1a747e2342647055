package api

import (
	"strings"
	"sync"
)

// Probe reports whether a dependency is reachable right now.
type Probe func() bool

type dependency struct {
	enabled  bool
	optional bool
	probe    Probe
}

func (d dependency) connected() bool {
	return d.enabled && d.probe != nil && d.probe()
}

// Readiness tracks what /ready reports: whether the story is loaded and
// whether MQTT and Postgres, when enabled, are reachable.
type Readiness struct {
	mu          sync.RWMutex
	storyLoaded bool
	mqtt        dependency
	postgres    dependency
}

// CheckStatus is one entry of a readiness report.
type CheckStatus struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
}

// ReadinessResponse is the /ready payload.
type ReadinessResponse struct {
	Ready       bool                   `json:"ready"`
	Checks      map[string]CheckStatus `json:"checks"`
	NotReadyMsg string                 `json:"message,omitempty"`
}

// SetStoryLoaded marks the story graph as loaded.
func (r *Readiness) SetStoryLoaded(loaded bool) {
	r.mu.Lock()
	r.storyLoaded = loaded
	r.mu.Unlock()
}

// SetMQTT enables the MQTT check. An optional dependency being down does
// not make the service unready.
func (r *Readiness) SetMQTT(probe Probe, optional bool) {
	r.mu.Lock()
	r.mqtt = dependency{enabled: true, optional: optional, probe: probe}
	r.mu.Unlock()
}

// SetPostgres enables the Postgres check.
func (r *Readiness) SetPostgres(probe Probe, optional bool) {
	r.mu.Lock()
	r.postgres = dependency{enabled: true, optional: optional, probe: probe}
	r.mu.Unlock()
}

// MQTT returns whether MQTT is enabled and connected.
func (r *Readiness) MQTT() (enabled, connected bool) {
	r.mu.RLock()
	d := r.mqtt
	r.mu.RUnlock()
	return d.enabled, d.connected()
}

// Postgres returns whether Postgres is enabled and connected.
func (r *Readiness) Postgres() (enabled, connected bool) {
	r.mu.RLock()
	d := r.postgres
	r.mu.RUnlock()
	return d.enabled, d.connected()
}

// Check evaluates every probe and builds the readiness report.
func (r *Readiness) Check() ReadinessResponse {
	r.mu.RLock()
	storyLoaded := r.storyLoaded
	deps := map[string]dependency{"mqtt": r.mqtt, "postgres": r.postgres}
	r.mu.RUnlock()

	resp := ReadinessResponse{
		Ready:  true,
		Checks: make(map[string]CheckStatus),
	}
	var reasons []string

	if storyLoaded {
		resp.Checks["story"] = CheckStatus{Status: "ok"}
	} else {
		resp.Ready = false
		resp.Checks["story"] = CheckStatus{Status: "not_ready"}
		reasons = append(reasons, "story not loaded")
	}

	for _, name := range []string{"mqtt", "postgres"} {
		d := deps[name]
		switch {
		case !d.enabled:
			resp.Checks[name] = CheckStatus{Status: "disabled"}
		case d.connected():
			resp.Checks[name] = CheckStatus{Status: "ok", Optional: d.optional}
		case d.optional:
			resp.Checks[name] = CheckStatus{Status: "unavailable", Optional: true}
		default:
			resp.Ready = false
			resp.Checks[name] = CheckStatus{Status: "not_ready"}
			reasons = append(reasons, name+" not connected")
		}
	}

	resp.NotReadyMsg = strings.Join(reasons, "; ")
	return resp
}
