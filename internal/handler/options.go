package handler

import "log/slog"

// Options are the settings shared by every handler.
type Options struct {
	// ExposeUpstreamErrors adds provider error text to the "details" field
	// of upstream error responses. Off in production.
	ExposeUpstreamErrors bool
}

func (o Options) errorWriter(logger *slog.Logger) errorWriter {
	return errorWriter{exposeDetails: o.ExposeUpstreamErrors, logger: logger}
}
