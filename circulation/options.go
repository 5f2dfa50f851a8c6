package circulation

// Option defines a functional option for configuring a Coordinator.
type Option func(*Coordinator) error

// WithLogger sets the logger for the Coordinator.
//
// Debug level: per-operation outcomes with timing (development use)
// Info level: committed state changes (production-safe)
// Warn level: non-critical issues like journal decode failures
// Error level: storage failures that cause operation failures.
func WithLogger(logger Logger) Option {
	return func(c *Coordinator) error {
		c.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger for the Coordinator, used
// for trace correlation by observability backends.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(c *Coordinator) error {
		c.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Coordinator. Each operation
// records its duration and an outcome counter.
func WithMetrics(collector MetricsCollector) Option {
	return func(c *Coordinator) error {
		c.metricsCollector = collector
		return nil
	}
}

// WithJournal sets the journal store the Coordinator appends circulation
// history to. Without a journal configured, no history is recorded.
func WithJournal(journal JournalStore) Option {
	return func(c *Coordinator) error {
		c.journal = journal
		return nil
	}
}
