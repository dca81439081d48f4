package mirror

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the ID assigned to the request by the server middleware,
// or an empty string.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Record is one request seen by an asset route.
type Record struct {
	ID       string
	Received time.Time
	Headers  map[string]string
}

// Ledger keeps the headers of received requests in arrival order.
type Ledger struct {
	mu      sync.Mutex
	records []Record
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Record appends the headers of r. Multi-valued headers are joined with
// ", " and the Host header is included.
func (l *Ledger) Record(r *http.Request) Record {
	headers := make(map[string]string, len(r.Header)+1)
	for k, v := range r.Header {
		headers[k] = strings.Join(v, ", ")
	}
	if r.Host != "" {
		headers["Host"] = r.Host
	}

	id := RequestID(r.Context())
	if id == "" {
		id = uuid.NewString()
	}
	rec := Record{ID: id, Received: time.Now(), Headers: headers}

	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
	return rec
}

// Headers returns the header maps of the last n records, oldest first.
// n <= 0 returns all of them. The result is nil when nothing was recorded.
func (l *Ledger) Headers(n int) []map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()

	recs := l.records
	if n > 0 && n < len(recs) {
		recs = recs[len(recs)-n:]
	}
	if len(recs) == 0 {
		return nil
	}
	out := make([]map[string]string, len(recs))
	for i, rec := range recs {
		out[i] = rec.Headers
	}
	return out
}

// Records returns a copy of all records.
func (l *Ledger) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Record(nil), l.records...)
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Clear drops all records.
func (l *Ledger) Clear() {
	l.mu.Lock()
	l.records = nil
	l.mu.Unlock()
}
