package scheduler

import (
	"sync"
	"time"
)

// ComponentStatus is the last known state of one component.
type ComponentStatus struct {
	Healthy   bool
	LastCheck time.Time
	LastError error
	Message   string
}

// Health tracks per-component health across scheduler cycles.
type Health struct {
	mu         sync.RWMutex
	components map[string]ComponentStatus
}

// NewHealth creates a new health tracker.
func NewHealth() *Health {
	return &Health{components: make(map[string]ComponentStatus)}
}

// SetHealthy marks a component as healthy.
func (h *Health) SetHealthy(component, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.components[component] = ComponentStatus{
		Healthy:   true,
		LastCheck: time.Now(),
		Message:   message,
	}
}

// SetUnhealthy marks a component as unhealthy.
func (h *Health) SetUnhealthy(component string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.components[component] = ComponentStatus{
		LastCheck: time.Now(),
		LastError: err,
		Message:   err.Error(),
	}
}

// Status returns the status of a component and whether it has reported yet.
func (h *Health) Status(component string) (ComponentStatus, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	status, ok := h.components[component]
	return status, ok
}

// Healthy reports whether every component that has reported is healthy.
func (h *Health) Healthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, status := range h.components {
		if !status.Healthy {
			return false
		}
	}
	return true
}
