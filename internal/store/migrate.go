package store

import (
	"context"

	"accezzpay/internal/models"

	"github.com/uptrace/bun"
)

// Bootstrap creates every table the pipeline touches. SQL migrations
// under internal/database/migrations own the production schema; this
// exists for local development and the in-memory test databases.
func Bootstrap(ctx context.Context, db *bun.DB) error {
	tables := []any{
		(*models.Organizer)(nil),
		(*models.Product)(nil),
		(*models.TicketType)(nil),
		(*models.Order)(nil),
		(*models.Payment)(nil),
		(*models.Ticket)(nil),
		(*models.LedgerEntry)(nil),
		(*models.WebhookEvent)(nil),
	}

	for _, table := range tables {
		if _, err := db.NewCreateTable().Model(table).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
