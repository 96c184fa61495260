package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/tipjar-backend/api/responses"
	pkgerrors "github.com/angelmondragon/tipjar-backend/pkg/errors"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessChecks names the dependencies probed by HealthReady.
type ReadinessChecks map[string]pinger

func HealthLive(env string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-TipJar-Env", env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency and fails with 503 when any is down.
func HealthReady(env string, checks ReadinessChecks, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-TipJar-Env", env)
		status := map[string]string{}
		var failed []string
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Ping(r.Context()); err != nil {
				status[name] = "down"
				failed = append(failed, name)
				if logg != nil {
					logg.Error(logg.WithField(r.Context(), "dependency", name), "readiness check failed", err)
				}
				continue
			}
			status[name] = "up"
		}
		if len(failed) > 0 {
			responses.WriteError(r.Context(), nil, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependency unavailable").WithDetails(status))
			return
		}
		status["status"] = "ready"
		responses.WriteSuccess(w, status)
	}
}
