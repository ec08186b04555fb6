package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	CyclesTotal          Counter
	CyclesSkippedStale   Counter
	ViolationsDetected   Counter
	OpportunitiesScored  Counter
	TradesSubmitted      Counter
	TradesFailed         Counter
	BudgetRejected       Counter
	SafeModeEngaged      Counter
	SafeModeRestored     Counter
	PermissionExpiration Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		CyclesTotal:          n,
		CyclesSkippedStale:   n,
		ViolationsDetected:   n,
		OpportunitiesScored:  n,
		TradesSubmitted:      n,
		TradesFailed:         n,
		BudgetRejected:       n,
		SafeModeEngaged:      n,
		SafeModeRestored:     n,
		PermissionExpiration: n,
	}
}
