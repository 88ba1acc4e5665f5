// Package logging builds the service's *slog.Logger.
//
// Core packages never import this package; they take a *slog.Logger and
// default to slog.Default(). cmd/tutor calls New and installs the result
// with slog.SetDefault; the HTTP server tags request contexts with
// WithRequestID.
//
// # Usage
//
//	var level slog.LevelVar
//	logger, err := logging.New(logging.Config{
//	    Level:     "info",
//	    Format:    "json",
//	    RedactPII: true,
//	    LevelVar:  &level,
//	})
//
//	// Context fields are added by the handler.
//	ctx = logging.WithRequestID(ctx, "req-123")
//	logger.InfoContext(ctx, "turn served", "source", "primary")
//
//	// Hot reload of the level.
//	lvl, _ := logging.ParseLevel(newCfg.Telemetry.Logging.Level)
//	level.Set(lvl)
//
// # PII Redaction
//
// With RedactPII set, attribute values are scanned before they are written:
//
//   - API keys: sk-abc123xyz456 → sk-a***
//   - Emails: user@example.com → u***@example.com
//   - Phone numbers: +1 555-123-4567 → ***-***-****
//   - IP addresses: 192.168.1.100 → 192.*.*.*
//
// Keys that name credentials (password, api_key, authorization, ...) are
// masked regardless of their value.
package logging
