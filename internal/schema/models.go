// Package schema lists the persisted models. Migrations are generated from it.
package schema

import (
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/conversation"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/deadletter"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/listing"
)

func Models() []any {
	return []any{
		&listing.Listing{},
		&conversation.Conversation{},
		&deadletter.CallPlacementDeadLetter{},
	}
}
