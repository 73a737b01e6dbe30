// Package types defines the core types for the Gate admission edge.
package types

import (
	"fmt"
	"time"
)

// ProjectStatus represents the lifecycle status of a tenant project.
type ProjectStatus string

const (
	// ProjectStatusActive means the project may be admitted.
	ProjectStatusActive ProjectStatus = "ACTIVE"

	// ProjectStatusSuspended means the project is temporarily blocked.
	ProjectStatusSuspended ProjectStatus = "SUSPENDED"

	// ProjectStatusArchived means the project is read-only archived.
	ProjectStatusArchived ProjectStatus = "ARCHIVED"

	// ProjectStatusDeleted means the project has been removed.
	ProjectStatusDeleted ProjectStatus = "DELETED"
)

// ProjectConfig is the per-project tenant state carried by a snapshot.
// It is owned by the snapshot and never mutated after construction.
type ProjectConfig struct {
	ID              string        `json:"id" yaml:"id"`
	Name            string        `json:"name" yaml:"name"`
	Status          ProjectStatus `json:"status" yaml:"status"`
	TenantID        string        `json:"tenantId" yaml:"tenant_id"`
	AllowedOrigins  []string      `json:"allowedOrigins,omitempty" yaml:"allowed_origins,omitempty"`
	RateLimit       int           `json:"rateLimit,omitempty" yaml:"rate_limit,omitempty"`
	EnabledServices []string      `json:"enabledServices,omitempty" yaml:"enabled_services,omitempty"`
}

// HasService reports whether the project has the named service enabled.
func (p *ProjectConfig) HasService(name string) bool {
	for _, s := range p.EnabledServices {
		if s == name {
			return true
		}
	}
	return false
}

// ServiceConfig describes a gateway-fronted service.
type ServiceConfig struct {
	Name         string `json:"name" yaml:"name"`
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	RequiresAuth bool   `json:"requiresAuth" yaml:"requires_auth"`
}

// RateLimitConfig holds rate-limit policy values for a project.
// These are policy numbers, not counters.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requestsPerMinute" yaml:"requests_per_minute"`
	RequestsPerHour   int `json:"requestsPerHour" yaml:"requests_per_hour"`
	BurstAllowance    int `json:"burstAllowance" yaml:"burst_allowance"`
}

// Snapshot is a point-in-time copy of control-plane tenant state.
// A snapshot is immutable once constructed; replacing tenant state means
// building a new Snapshot and swapping the reference, never mutating a
// live one.
type Snapshot struct {
	Version    int64                       `json:"version" yaml:"version"`
	Timestamp  time.Time                   `json:"timestamp" yaml:"timestamp"`
	Projects   map[string]*ProjectConfig   `json:"projects" yaml:"projects"`
	Services   map[string]*ServiceConfig   `json:"services" yaml:"services"`
	RateLimits map[string]*RateLimitConfig `json:"rateLimits" yaml:"rate_limits"`
}

// reservedKeys are mapping keys that must never appear in a snapshot.
// A payload carrying one of these indicates a poisoned or compromised
// control-plane response and is rejected at the trust boundary.
var reservedKeys = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// IsReservedKey reports whether key belongs to the reserved-key set.
func IsReservedKey(key string) bool {
	return reservedKeys[key]
}

// Validate performs structural validation of a decoded snapshot. It is
// called by the fetcher before a snapshot may be installed; a snapshot
// that fails validation is never served.
func (s *Snapshot) Validate() error {
	if s.Version < 0 {
		return NewValidationError(fmt.Sprintf("snapshot version must be non-negative, got %d", s.Version))
	}
	if s.Timestamp.IsZero() {
		return NewValidationError("snapshot timestamp is missing")
	}
	if s.Projects == nil {
		return NewValidationError("snapshot projects mapping is missing")
	}
	if s.Services == nil {
		return NewValidationError("snapshot services mapping is missing")
	}
	if s.RateLimits == nil {
		return NewValidationError("snapshot rateLimits mapping is missing")
	}

	for key := range s.Projects {
		if IsReservedKey(key) {
			return NewPoisonedPayloadError("projects", key)
		}
	}
	for key := range s.Services {
		if IsReservedKey(key) {
			return NewPoisonedPayloadError("services", key)
		}
	}
	for key := range s.RateLimits {
		if IsReservedKey(key) {
			return NewPoisonedPayloadError("rateLimits", key)
		}
	}

	return nil
}
