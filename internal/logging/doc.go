// Package logging builds the slog.Logger used by the compliai binaries from
// a config.LoggingConfig: JSON lines for machines, or a compact coloured
// format (time, three-letter level, message, key=value pairs) for people.
package logging
