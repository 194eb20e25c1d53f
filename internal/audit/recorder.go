package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sink is the persistence half of the recorder.
type Sink interface {
	Insert(ctx context.Context, e Entry) error
}

// Recorder appends entries without ever failing the operation being audited.
// Record detaches from the caller's request: the write runs on its own
// goroutine with its own deadline, and a failure is only logged.
type Recorder struct {
	sink    Sink
	logger  *zap.SugaredLogger
	timeout time.Duration
}

func NewRecorder(sink Sink, logger *zap.SugaredLogger) *Recorder {
	return &Recorder{sink: sink, logger: logger, timeout: 5 * time.Second}
}

// Record appends an entry asynchronously, fire-and-forget.
func (r *Recorder) Record(e Entry) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.sink.Insert(ctx, e); err != nil {
			r.logger.Warnw("audit write failed",
				"module", e.ModuleName, "action", e.ActionType, "record", e.RecordID, "err", err)
		}
	}()
}
