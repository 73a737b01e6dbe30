package server

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rzbill/gate/pkg/enforce"
	"github.com/rzbill/gate/pkg/types"
)

// admitResponse is the wire shape of an admitted request.
type admitResponse struct {
	Allowed   bool              `json:"allowed"`
	Project   *projectSummary   `json:"project,omitempty"`
	RateLimit *rateLimitSummary `json:"rateLimit,omitempty"`
}

type projectSummary struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type rateLimitSummary struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Window    string    `json:"window"`
	ResetTime time.Time `json:"resetTime"`
}

// denyResponse is the wire shape of a denial. The error carries only
// what the caller may learn; lifecycle denials stay generic.
type denyResponse struct {
	Allowed bool      `json:"allowed"`
	Error   errorInfo `json:"error"`
}

type errorInfo struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	Retryable         bool   `json:"retryable"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

func errorBody(code, message string, retryable bool, retryAfter time.Duration) denyResponse {
	return denyResponse{
		Allowed: false,
		Error: errorInfo{
			Code:              code,
			Message:           message,
			Retryable:         retryable,
			RetryAfterSeconds: retryAfterSeconds(retryAfter),
		},
	}
}

func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// writeDecision renders a pipeline decision to the wire.
func writeDecision(w http.ResponseWriter, decision enforce.Decision) {
	if decision.Allowed {
		resp := admitResponse{Allowed: true}
		if decision.Project != nil {
			resp.Project = &projectSummary{ID: decision.Project.ID, Name: decision.Project.Name}
		}
		if decision.RateLimit != nil && decision.RateLimit.Limit > 0 {
			resp.RateLimit = &rateLimitSummary{
				Limit:     decision.RateLimit.Limit,
				Remaining: decision.RateLimit.Remaining,
				Window:    string(decision.RateLimit.Window),
				ResetTime: decision.RateLimit.ResetTime,
			}
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	denial := decision.Err
	if seconds := retryAfterSeconds(denial.RetryAfter); seconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	writeJSON(w, denial.HTTPStatus, errorBody(wireCode(denial.Code), denial.Message, denial.Retryable, denial.RetryAfter))
}

// wireCode maps an internal deny code to its external form. Lifecycle
// denials all surface as the same code so a prober cannot tell a
// missing project from a suspended, archived, or deleted one. Internal
// codes still flow to logs and metrics.
func wireCode(code types.DenyCode) string {
	switch code {
	case types.DenyProjectNotFound, types.DenyProjectSuspended,
		types.DenyProjectArchived, types.DenyProjectDeleted:
		return "PROJECT_ACCESS_DENIED"
	default:
		return string(code)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
