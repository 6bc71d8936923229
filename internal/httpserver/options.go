package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mqstudio/studio-server/internal/health"
	"github.com/mqstudio/studio-server/internal/httpmw"
	"github.com/mqstudio/studio-server/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func() // Optional callback for when panics are recovered, e.g. to increment prometheus counters
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions
	APIRoutes    func(chi.Router)
	Health       health.Probe
	Readiness    health.Probe
	MaxBodyBytes int64
}
