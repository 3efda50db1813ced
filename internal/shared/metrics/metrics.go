package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the order pipeline counters. Exposition is left to whoever owns the registry.
type Recorder struct {
	processed  prometheus.Counter
	failed     prometheus.Counter
	retried    prometheus.Counter
	malformed  prometheus.Counter
	duplicates prometheus.Counter
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
}

// NewRecorder creates the counters and registers them with reg (prometheus.DefaultRegisterer when nil).
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Recorder{
		processed:  newCounter("orders_processed_total", "Total number of order events processed successfully"),
		failed:     newCounter("orders_failed_total", "Total number of order events dead-lettered after exhausting retries"),
		retried:    newCounter("orders_retried_total", "Total number of order events re-published for another attempt"),
		malformed:  newCounter("orders_malformed_total", "Total number of undecodable order events dropped"),
		duplicates: newCounter("orders_duplicates_total", "Total number of duplicate order events skipped"),
	}

	for _, c := range []prometheus.Collector{r.processed, r.failed, r.retried, r.malformed, r.duplicates} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) IncProcessed() { r.processed.Inc() }
func (r *Recorder) IncFailed()    { r.failed.Inc() }
func (r *Recorder) IncRetried()   { r.retried.Inc() }
func (r *Recorder) IncMalformed() { r.malformed.Inc() }
func (r *Recorder) IncDuplicate() { r.duplicates.Inc() }
