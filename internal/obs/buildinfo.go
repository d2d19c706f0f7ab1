package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Version and Commit are stamped at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "BeetleBooks build information.",
		},
		[]string{"version", "commit"},
	)
)

// InitBuildInfo registers the build_info gauge once and sets its labels.
func InitBuildInfo() {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(Version, Commit).Set(1)
}
