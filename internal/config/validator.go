package config

import (
	"fmt"
	"strings"

	"github.com/srediag/regionshm/pkg/shm"
	"github.com/srediag/regionshm/pkg/worker"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Validate checks the Config and returns every validation error found.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	add := func(field string, value any, msg string) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: msg})
	}

	if _, err := shm.NewLayout(c.Buffer.Len, c.Buffer.Regions); err != nil {
		add("buffer.len", c.Buffer.Len, fmt.Sprintf("must be positive and divisible by buffer.regions (%d)", c.Buffer.Regions))
	}
	if c.Buffer.FillMin > c.Buffer.FillMax {
		add("buffer.fill_min", c.Buffer.FillMin, "must not exceed buffer.fill_max")
	}
	if c.Buffer.RowWidth <= 0 {
		add("buffer.row_width", c.Buffer.RowWidth, "must be positive")
	}
	if strings.ContainsRune(strings.TrimPrefix(c.Buffer.Name, "/"), '/') {
		add("buffer.name", c.Buffer.Name, "must not contain a path separator")
	}
	if c.Locks.Prefix == "" || strings.ContainsRune(c.Locks.Prefix, '/') {
		add("locks.prefix", c.Locks.Prefix, "must be a non-empty file name")
	}
	if c.Supervisor.Tick <= 0 {
		add("supervisor.tick", c.Supervisor.Tick, "must be positive")
	}
	if c.Supervisor.Ceiling < c.Supervisor.Tick {
		add("supervisor.ceiling", c.Supervisor.Ceiling, "must be at least one tick")
	}

	for i, w := range c.Workers {
		field := fmt.Sprintf("workers[%d]", i)
		if _, err := worker.ParseOp(w.Op); err != nil {
			add(field+".op", w.Op, "unknown operation")
		}
		if w.Cadence <= 0 {
			add(field+".cadence", w.Cadence, "must be positive")
		}
		if w.Pause < 0 {
			add(field+".pause", w.Pause, "must not be negative")
		}
		if w.Lifetime <= 0 {
			add(field+".lifetime", w.Lifetime, "must be positive")
		}
		for _, r := range w.Regions {
			if r < 0 || r >= c.Buffer.Regions {
				add(field+".regions", r, fmt.Sprintf("must be in [0, %d)", c.Buffer.Regions))
			}
		}
	}
	return errs
}
