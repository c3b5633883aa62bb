package collector

import "log"

// Sink receives human-readable error notices.
type Sink interface {
	Report(msg string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(msg string)

func (f SinkFunc) Report(msg string) { f(msg) }

// LogSink writes notices to the standard logger.
type LogSink struct{}

func (LogSink) Report(msg string) {
	log.Printf("[ERROR] %s", msg)
}

// MultiSink fans a notice out to several sinks.
type MultiSink []Sink

func (m MultiSink) Report(msg string) {
	for _, s := range m {
		if s != nil {
			s.Report(msg)
		}
	}
}
