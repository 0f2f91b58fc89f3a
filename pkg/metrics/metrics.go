package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "neofs_diskfile"

// DiskFileMetrics collects disk file layer metrics of all policies.
type DiskFileMetrics struct {
	diskFileMetrics
}

// NewDiskFileMetrics creates and registers disk file layer collectors
// along with the version gauge.
func NewDiskFileMetrics(reg prometheus.Registerer, version string) *DiskFileMetrics {
	df := newDiskFileMetrics()
	df.register(reg)

	registerVersionMetric(reg, namespace, version)

	return &DiskFileMetrics{
		diskFileMetrics: df,
	}
}
