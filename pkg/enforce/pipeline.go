// Package enforce implements the ordered admission pipeline that turns
// cached tenant state into an admit/deny decision.
package enforce

import (
	"context"

	"github.com/rzbill/gate/pkg/log"
	"github.com/rzbill/gate/pkg/ratelimit"
	"github.com/rzbill/gate/pkg/types"
)

// StateSource is the snapshot-cache read API the pipeline consumes. The
// pipeline never sees fetch or parse errors; only the cache's typed
// outcomes cross this boundary.
type StateSource interface {
	GetProject(id string) (*types.ProjectConfig, bool, error)
	IsServiceEnabled(projectID, serviceName string) (bool, error)
	GetRateLimit(projectID string) (*types.RateLimitConfig, error)
}

// RateLimiter is the limiter capability the pipeline delegates to.
type RateLimiter interface {
	Check(ctx context.Context, projectID string, cfg *types.RateLimitConfig) (*ratelimit.Result, error)
}

// Request carries the already-authenticated inputs to an admission
// decision. Identity extraction happens upstream; by the time the
// pipeline runs, ProjectID is trusted.
type Request struct {
	ProjectID string

	// Service is the target service name, when the request addresses
	// one. Empty skips the enablement stage.
	Service string

	// Origin is the request origin (IP or origin string), when origin
	// checking is enabled. Empty skips the origin stage.
	Origin string
}

// Decision is the transient, per-request outcome of the pipeline.
type Decision struct {
	Allowed   bool
	Project   *types.ProjectConfig
	Err       *types.AdmissionError
	RateLimit *ratelimit.Result
}

func deny(err *types.AdmissionError) Decision {
	return Decision{Allowed: false, Err: err}
}

// Pipeline applies the fixed stage order: project resolution, status,
// origin (optional), service enablement, rate limit. Earlier, cheaper
// denials short-circuit before per-bucket work.
type Pipeline struct {
	state   StateSource
	limiter RateLimiter
	logger  log.Logger
}

// NewPipeline creates an enforcement pipeline over the given state
// source and limiter. The limiter may be nil when rate limiting is
// handled elsewhere; Admit then stops after the enablement stage.
func NewPipeline(state StateSource, limiter RateLimiter, logger log.Logger) *Pipeline {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Pipeline{
		state:   state,
		limiter: limiter,
		logger:  logger.WithComponent("enforce"),
	}
}

// CheckProject runs stages 1-2: resolve the project and gate on its
// lifecycle status.
func (p *Pipeline) CheckProject(projectID string) Decision {
	project, found, err := p.state.GetProject(projectID)
	if err != nil {
		if ae, ok := types.AsAdmissionError(err); ok {
			return deny(ae)
		}
		// The cache contract only yields admission errors; anything else
		// still fails closed.
		p.logger.Error("unexpected cache error", log.Err(err))
		return deny(types.NewSnapshotUnavailableError())
	}
	if !found {
		// Generic on purpose: a prober must not learn whether the id
		// ever existed.
		return deny(types.NewProjectNotFoundError())
	}

	switch project.Status {
	case types.ProjectStatusActive:
		return Decision{Allowed: true, Project: project}
	case types.ProjectStatusSuspended:
		return deny(types.NewProjectSuspendedError())
	case types.ProjectStatusArchived:
		return deny(types.NewProjectArchivedError())
	case types.ProjectStatusDeleted:
		return deny(types.NewProjectDeletedError())
	default:
		// Unknown lifecycle values are never treated as active.
		p.logger.Warn("unrecognized project status, denying",
			log.Str(log.ProjectKey, project.ID),
			log.Str("status", string(project.Status)))
		return deny(types.NewProjectSuspendedError())
	}
}

// CheckService runs stages 1-3.
func (p *Pipeline) CheckService(projectID, service string) Decision {
	decision := p.CheckProject(projectID)
	if !decision.Allowed || service == "" {
		return decision
	}

	enabled, err := p.state.IsServiceEnabled(projectID, service)
	if err != nil {
		if ae, ok := types.AsAdmissionError(err); ok {
			return deny(ae)
		}
		p.logger.Error("unexpected cache error", log.Err(err))
		return deny(types.NewSnapshotUnavailableError())
	}
	if !enabled {
		return Decision{Allowed: false, Project: decision.Project, Err: types.NewServiceDisabledError(service)}
	}

	return decision
}

// Admit runs the full chain for a request.
func (p *Pipeline) Admit(ctx context.Context, req Request) Decision {
	decision := p.CheckProject(req.ProjectID)
	if !decision.Allowed {
		return decision
	}

	if req.Origin != "" {
		if !originAllowed(decision.Project.AllowedOrigins, req.Origin, p.logger) {
			return Decision{Allowed: false, Project: decision.Project, Err: types.NewOriginNotAllowedError()}
		}
	}

	if req.Service != "" {
		decision = p.checkServiceResolved(decision, req.ProjectID, req.Service)
		if !decision.Allowed {
			return decision
		}
	}

	if p.limiter == nil {
		return decision
	}

	cfg, err := p.state.GetRateLimit(req.ProjectID)
	if err != nil {
		if ae, ok := types.AsAdmissionError(err); ok {
			return Decision{Allowed: false, Project: decision.Project, Err: ae}
		}
		p.logger.Error("unexpected cache error", log.Err(err))
		return Decision{Allowed: false, Project: decision.Project, Err: types.NewSnapshotUnavailableError()}
	}
	if cfg == nil && decision.Project.RateLimit > 0 {
		// Projects without a dedicated policy fall back to their flat
		// per-minute limit.
		cfg = &types.RateLimitConfig{RequestsPerMinute: decision.Project.RateLimit}
	}

	result, err := p.limiter.Check(ctx, req.ProjectID, cfg)
	if err != nil {
		// Limiter storage failure: the request carries no proof it is
		// within budget, so it does not pass.
		p.logger.Error("rate limit check failed", log.Err(err), log.Str(log.ProjectKey, req.ProjectID))
		return Decision{Allowed: false, Project: decision.Project, Err: types.NewSnapshotUnavailableError()}
	}
	decision.RateLimit = result
	if !result.Allowed {
		return Decision{
			Allowed:   false,
			Project:   decision.Project,
			RateLimit: result,
			Err:       types.NewRateLimitExceededError(result.RetryAfter),
		}
	}

	return decision
}

// checkServiceResolved runs stage 3 against an already-resolved project.
func (p *Pipeline) checkServiceResolved(decision Decision, projectID, service string) Decision {
	enabled, err := p.state.IsServiceEnabled(projectID, service)
	if err != nil {
		if ae, ok := types.AsAdmissionError(err); ok {
			return Decision{Allowed: false, Project: decision.Project, Err: ae}
		}
		p.logger.Error("unexpected cache error", log.Err(err))
		return Decision{Allowed: false, Project: decision.Project, Err: types.NewSnapshotUnavailableError()}
	}
	if !enabled {
		return Decision{Allowed: false, Project: decision.Project, Err: types.NewServiceDisabledError(service)}
	}
	return decision
}
