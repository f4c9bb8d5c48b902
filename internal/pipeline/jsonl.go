package pipeline

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/ppiankov/cogito/internal/model"
)

// JSONLObserver writes each event as one JSON line. Write errors are
// logged once and later events are dropped.
type JSONLObserver struct {
	mu     sync.Mutex
	enc    *json.Encoder
	failed bool
	logger *slog.Logger
}

// NewJSONLObserver writes events to w
func NewJSONLObserver(w io.Writer, logger *slog.Logger) *JSONLObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONLObserver{enc: json.NewEncoder(w), logger: logger}
}

func (o *JSONLObserver) OnEvent(ev model.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.failed {
		return
	}
	if err := o.enc.Encode(ev); err != nil {
		o.failed = true
		o.logger.Warn("event sink failed, dropping further events", "error", err)
	}
}
