// Package schema holds the ent schema of the transcript archive.
package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/papercomputeco/parley/pkg/conversation"
)

// Exchange holds the schema definition for the Exchange entity.
// One row is one finished stream session.
type Exchange struct {
	ent.Schema
}

// Fields of the Exchange.
func (Exchange) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable().
			NotEmpty(),

		field.String("session_id").
			NotEmpty().
			Immutable(),

		field.String("model").
			Immutable(),

		// session outcome name, e.g. "success" or "api_error"
		field.String("outcome").
			Immutable(),

		field.JSON("messages", []conversation.Message{}).
			Immutable(),

		field.Text("response").
			Immutable(),

		field.Time("started_at").
			Immutable(),

		field.Time("completed_at").
			Immutable(),
	}
}

// Indexes of the Exchange.
func (Exchange) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("started_at"),
		index.Fields("model"),
		index.Fields("outcome"),
	}
}
