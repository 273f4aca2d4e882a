package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

type HealthCheck func(ctx context.Context) error

// HealthService runs the named dependency checks behind the health endpoint.
type HealthService struct {
	checks map[string]HealthCheck
}

func NewHealthService() *HealthService {
	return &HealthService{checks: make(map[string]HealthCheck)}
}

func (h *HealthService) Register(name string, check HealthCheck) *HealthService {
	h.checks[name] = check
	return h
}

// Check returns an error naming every failing dependency.
func (h *HealthService) Check(ctx context.Context) error {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var failed []string
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("unhealthy: %s", strings.Join(failed, "; "))
	}
	return nil
}
