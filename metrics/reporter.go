package metrics

import (
	"go.uber.org/zap"
)

type logReporter struct {
	log *zap.SugaredLogger
}

// NewLogReporter reporter printing each stats delta with given logger
func NewLogReporter(log *zap.SugaredLogger) Reporter {
	return &logReporter{
		log: log,
	}
}

func (r *logReporter) Push(st Stats) {
	r.log.Infow("stats",
		"connections", st.Connected,
		"subscriptions", st.Subscriptions,
		"msgs.in", st.Msgs.Recv,
		"msgs.out", st.Msgs.Sent,
		"bytes.in", st.Bytes.Recv,
		"bytes.out", st.Bytes.Sent,
		"dropped", st.Dropped,
		"slowConsumers", st.SlowConsumers)
}

func (r *logReporter) Shutdown() error {
	return nil
}
