package postgres

import (
	"log/slog"

	"github.com/leapstack-labs/leapmeta/pkg/adapter"

	// Import dialect to ensure it's registered
	_ "github.com/leapstack-labs/leapmeta/pkg/dialects/postgres"
)

func init() {
	adapter.Register("postgres", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
