package diskfile

// MetricRegister receives disk file layer events.
type MetricRegister interface {
	IncQuarantines(policy int)
	IncAsyncPendings(policy int)
	AddSuffixesHashed(policy int, n int)
	IncHashesRetries(policy int)
	IncLockTimeouts(policy int)
	AddReclaimed(policy int, n int)
}

type noopMetrics struct{}

func (noopMetrics) IncQuarantines(int) {}
func (noopMetrics) IncAsyncPendings(int) {}
func (noopMetrics) AddSuffixesHashed(int, int) {}
func (noopMetrics) IncHashesRetries(int) {}
func (noopMetrics) IncLockTimeouts(int) {}
func (noopMetrics) AddReclaimed(int, int) {}
