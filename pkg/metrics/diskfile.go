package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	diskFileSubsystem = "diskfile"
	policyLabelKey    = "policy"
)

type diskFileMetrics struct {
	quarantines    *prometheus.CounterVec
	asyncPendings  *prometheus.CounterVec
	suffixesHashed *prometheus.CounterVec
	hashesRetries  *prometheus.CounterVec
	lockTimeouts   *prometheus.CounterVec
	reclaimed      *prometheus.CounterVec
}

func newPolicyCounter(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: diskFileSubsystem,
		Name:      name,
		Help:      help,
	}, []string{policyLabelKey})
}

func newDiskFileMetrics() diskFileMetrics {
	return diskFileMetrics{
		quarantines:    newPolicyCounter("quarantines_total", "Number of quarantined hash directories and files"),
		asyncPendings:  newPolicyCounter("async_pendings_total", "Number of deferred container updates written"),
		suffixesHashed: newPolicyCounter("suffixes_hashed_total", "Number of suffix directories rehashed"),
		hashesRetries:  newPolicyCounter("hashes_retries_total", "Number of partition hashes rewrites retried due to concurrent changes"),
		lockTimeouts:   newPolicyCounter("lock_timeouts_total", "Number of partition and replication lock timeouts"),
		reclaimed:      newPolicyCounter("reclaimed_files_total", "Number of files removed by hash directory cleanup"),
	}
}

func (m diskFileMetrics) register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.quarantines,
		m.asyncPendings,
		m.suffixesHashed,
		m.hashesRetries,
		m.lockTimeouts,
		m.reclaimed,
	)
}

func policyLabel(policy int) prometheus.Labels {
	return prometheus.Labels{policyLabelKey: strconv.Itoa(policy)}
}

func (m diskFileMetrics) IncQuarantines(policy int) {
	m.quarantines.With(policyLabel(policy)).Inc()
}

func (m diskFileMetrics) IncAsyncPendings(policy int) {
	m.asyncPendings.With(policyLabel(policy)).Inc()
}

func (m diskFileMetrics) AddSuffixesHashed(policy int, n int) {
	m.suffixesHashed.With(policyLabel(policy)).Add(float64(n))
}

func (m diskFileMetrics) IncHashesRetries(policy int) {
	m.hashesRetries.With(policyLabel(policy)).Inc()
}

func (m diskFileMetrics) IncLockTimeouts(policy int) {
	m.lockTimeouts.With(policyLabel(policy)).Inc()
}

func (m diskFileMetrics) AddReclaimed(policy int, n int) {
	m.reclaimed.With(policyLabel(policy)).Add(float64(n))
}
