package health

import (
	"context"
	"time"
)

// ReadinessChecker reports unhealthy until ready returns true.
type ReadinessChecker struct {
	name    string
	ready   func() bool
	details func() map[string]interface{}
}

// NewReadinessChecker builds a checker from a readiness probe. details may be nil;
// it is only consulted once ready.
func NewReadinessChecker(name string, ready func() bool, details func() map[string]interface{}) *ReadinessChecker {
	return &ReadinessChecker{name: name, ready: ready, details: details}
}

func (c *ReadinessChecker) Name() string {
	return c.name
}

func (c *ReadinessChecker) Check(_ context.Context) *ComponentHealth {
	ch := &ComponentHealth{
		Name:        c.name,
		Status:      StatusUnhealthy,
		Message:     "UNINITIALIZED",
		LastChecked: time.Now(),
	}
	if c.ready() {
		ch.Status = StatusHealthy
		ch.Message = "READY"
		if c.details != nil {
			ch.Metadata = c.details()
		}
	}
	return ch
}
