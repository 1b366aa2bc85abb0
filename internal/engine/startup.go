package engine

import (
	"context"
	"log/slog"
)

// Probe logs whether the backend is usable. A missing key or unreachable
// server is reported but never fatal: components fall back per call.
func Probe(ctx context.Context, e Engine, provider string, logger *slog.Logger) bool {
	if e.IsRunning(ctx) {
		logger.Info("llm backend ready", "provider", provider)
		return true
	}
	logger.Warn("llm backend unavailable, replies will use fallback drafts", "provider", provider)
	return false
}
