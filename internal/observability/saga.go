package observability

import (
	"context"

	"grocer/internal/saga"
)

// SagaObserver returns a saga.Observer that counts outcomes in m.
func (m *Metrics) SagaObserver() saga.Observer {
	return saga.ObserverFunc(func(_ context.Context, n saga.Notification) {
		m.recordSaga(n)
	})
}

func (m *Metrics) recordSaga(n saga.Notification) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stats, ok := m.sagas[n.Saga]
	if !ok {
		stats = &sagaStats{}
		m.sagas[n.Saga] = stats
	}
	switch n.Kind {
	case saga.KindSagaStarted:
		stats.started++
	case saga.KindSagaCompleted:
		stats.completed++
		stats.totalDuration += n.Duration
	case saga.KindSagaFailed:
		stats.failed++
	case saga.KindStepCompensated:
		stats.compensated++
	case saga.KindCompensationFailed:
		stats.compFailed++
	}
}
