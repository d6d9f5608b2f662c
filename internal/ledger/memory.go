package ledger

import (
	"context"
	"sync"
)

// MemorySink is an in-process Sink, used when no database is configured.
type MemorySink struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemorySink() *MemorySink {
	return &MemorySink{records: make([]Record, 0)}
}

func (sink *MemorySink) Append(_ context.Context, record Record) error {
	sink.mu.Lock()
	defer sink.mu.Unlock()

	sink.records = append(sink.records, record)
	return nil
}

func (sink *MemorySink) QueryByURL(_ context.Context, url string) ([]Record, error) {
	sink.mu.RLock()
	defer sink.mu.RUnlock()

	out := make([]Record, 0)
	for i := len(sink.records) - 1; i >= 0; i-- {
		if sink.records[i].URL == url {
			out = append(out, sink.records[i])
		}
	}

	return out, nil
}
