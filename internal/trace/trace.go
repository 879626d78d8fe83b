package trace

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Entry is one ordered step record in a request trace.
type Entry struct {
	Tag  string         `json:"tag"`
	At   string         `json:"at"`
	Data map[string]any `json:"data,omitempty"`
}

// Recorder accumulates an append-only, ordered log of tagged structured
// events for the lifetime of one swap request. It is not safe for
// concurrent use; each request owns its own recorder.
type Recorder struct {
	entries []Entry
	logger  logrus.FieldLogger
	now     func() time.Time
}

func New() *Recorder {
	return &Recorder{now: time.Now}
}

// NewWithLogger mirrors every entry to logger at debug level.
func NewWithLogger(logger logrus.FieldLogger) *Recorder {
	r := New()
	r.logger = logger
	return r
}

func (r *Recorder) Add(tag string, data map[string]any) {
	r.entries = append(r.entries, Entry{
		Tag:  tag,
		At:   r.now().UTC().Format(time.RFC3339Nano),
		Data: data,
	})
	if r.logger != nil {
		r.logger.WithFields(logrus.Fields(data)).Debug(tag)
	}
}

// Entries returns the accumulated trace in insertion order.
func (r *Recorder) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Recorder) Len() int { return len(r.entries) }
