package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeValidSnapshot() *Snapshot {
	return &Snapshot{
		Version:   1,
		Timestamp: time.Now(),
		Projects: map[string]*ProjectConfig{
			"p1": {
				ID:              "p1",
				Name:            "Project One",
				Status:          ProjectStatusActive,
				TenantID:        "t1",
				EnabledServices: []string{"auth", "search"},
			},
		},
		Services: map[string]*ServiceConfig{
			"auth": {Name: "auth", Enabled: true, Endpoint: "http://auth:8080"},
		},
		RateLimits: map[string]*RateLimitConfig{
			"p1": {RequestsPerMinute: 60, RequestsPerHour: 1000, BurstAllowance: 5},
		},
	}
}

func TestSnapshotValidate_OK(t *testing.T) {
	s := makeValidSnapshot()
	assert.NoError(t, s.Validate())
}

func TestSnapshotValidate_NegativeVersion(t *testing.T) {
	s := makeValidSnapshot()
	s.Version = -1
	err := s.Validate()
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestSnapshotValidate_MissingTimestamp(t *testing.T) {
	s := makeValidSnapshot()
	s.Timestamp = time.Time{}
	assert.Error(t, s.Validate())
}

func TestSnapshotValidate_MissingMappings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Snapshot)
	}{
		{"nil projects", func(s *Snapshot) { s.Projects = nil }},
		{"nil services", func(s *Snapshot) { s.Services = nil }},
		{"nil rate limits", func(s *Snapshot) { s.RateLimits = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := makeValidSnapshot()
			tt.mutate(s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestSnapshotValidate_ReservedKeys(t *testing.T) {
	for _, key := range []string{"__proto__", "constructor", "prototype"} {
		t.Run("projects/"+key, func(t *testing.T) {
			s := makeValidSnapshot()
			s.Projects[key] = &ProjectConfig{ID: key}
			err := s.Validate()
			require.Error(t, err)
			assert.True(t, IsPoisonedPayload(err))
		})
		t.Run("services/"+key, func(t *testing.T) {
			s := makeValidSnapshot()
			s.Services[key] = &ServiceConfig{Name: key}
			err := s.Validate()
			require.Error(t, err)
			assert.True(t, IsPoisonedPayload(err))
		})
		t.Run("rateLimits/"+key, func(t *testing.T) {
			s := makeValidSnapshot()
			s.RateLimits[key] = &RateLimitConfig{}
			err := s.Validate()
			require.Error(t, err)
			assert.True(t, IsPoisonedPayload(err))
		})
	}
}

func TestProjectConfigHasService(t *testing.T) {
	p := &ProjectConfig{EnabledServices: []string{"auth", "search"}}
	assert.True(t, p.HasService("auth"))
	assert.False(t, p.HasService("storage"))
}

func TestEmptyMappingsAreValid(t *testing.T) {
	s := &Snapshot{
		Version:    0,
		Timestamp:  time.Now(),
		Projects:   map[string]*ProjectConfig{},
		Services:   map[string]*ServiceConfig{},
		RateLimits: map[string]*RateLimitConfig{},
	}
	assert.NoError(t, s.Validate())
}
