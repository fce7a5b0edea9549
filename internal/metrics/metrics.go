// Package metrics decouples the loader from any particular metrics vendor.
// The core code calls the package-level helpers; a backend (e.g. Datadog) is
// installed at startup via SetBackend. The default backend drops everything.
package metrics

import "sync"

// Labels attach dimensions to a metric sample.
type Labels map[string]string

// Backend receives metric samples. Implementations decide buffering and
// submission; unknown metric names may be ignored.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs the active backend. Call once at startup.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush forces the active backend to submit buffered samples.
func Flush() error {
	return current().Flush()
}
