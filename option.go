package goxq

import (
	"time"

	"go.uber.org/zap"
)

// CompilerOption is a compiler option.
type CompilerOption func(*compiler)

// WithLogger is a compiler option for the logger of compile decisions and
// evaluations. The default logger discards everything.
func WithLogger(logger *zap.Logger) CompilerOption {
	return func(c *compiler) {
		c.logger = logger
	}
}

// WithMaxCallDepth is a compiler option for the depth of nested function
// calls beyond which an evaluation fails with SXLM0001.
func WithMaxCallDepth(depth int) CompilerOption {
	return func(c *compiler) {
		c.maxDepth = depth
	}
}

// WithInlineThreshold is a compiler option for the largest function body,
// counted in expressions, that is inlined at its call sites. Zero disables
// inlining.
func WithInlineThreshold(size int) CompilerOption {
	return func(c *compiler) {
		c.inlineSize = size
	}
}

// WithCollation is a compiler option for the default collation.
func WithCollation(collation *Collation) CompilerOption {
	return func(c *compiler) {
		c.collation = collation
	}
}

// WithImplicitTimezone is a compiler option for the timezone of date and
// time values that have none.
func WithImplicitTimezone(tz *time.Location) CompilerOption {
	return func(c *compiler) {
		c.tz = tz
	}
}

// WithMetrics is a compiler option for the metrics updated by evaluations.
func WithMetrics(metrics *Metrics) CompilerOption {
	return func(c *compiler) {
		c.metrics = metrics
	}
}

// WithTypeHierarchy is a compiler option for the type hierarchy used by
// the static type checks.
func WithTypeHierarchy(th TypeHierarchy) CompilerOption {
	return func(c *compiler) {
		c.th = th
	}
}

// WithCurrentTime is a compiler option for the clock of current-dateTime().
// The time is read once per evaluation.
func WithCurrentTime(now func() time.Time) CompilerOption {
	return func(c *compiler) {
		c.now = now
	}
}
