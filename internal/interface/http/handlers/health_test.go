package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCompositeHealthChecker(t *testing.T) {
	tests := []struct {
		name    string
		checks  map[string]HealthCheckFunc
		healthy bool
		message string
	}{
		{
			name:    "no checks",
			healthy: true,
			message: "No health checks registered",
		},
		{
			name: "all pass",
			checks: map[string]HealthCheckFunc{
				"database": PingCheck(pinger{}),
				"redis":    PingCheck(pinger{}),
			},
			healthy: true,
			message: "All checks passed",
		},
		{
			name: "failures are listed sorted",
			checks: map[string]HealthCheckFunc{
				"redis":    PingCheck(pinger{err: errors.New("down")}),
				"database": PingCheck(pinger{err: errors.New("down")}),
				"openai":   PingCheck(pinger{}),
			},
			healthy: false,
			message: "Some checks failed: database, redis",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCompositeHealthChecker("test")
			for name, check := range tt.checks {
				c.AddCheck(name, check)
			}

			status := c.Check(context.Background())
			assert.Equal(t, tt.healthy, status.Healthy)
			assert.Equal(t, tt.message, status.Message)
			assert.Len(t, status.Checks, len(tt.checks))
			assert.Equal(t, "test", status.Version)
		})
	}
}

func TestCompositeHealthChecker_Timeout(t *testing.T) {
	c := NewCompositeHealthChecker("")
	c.SetTimeout(10 * time.Millisecond)
	c.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"].Message)
}
