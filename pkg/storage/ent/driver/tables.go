package entdriver

import (
	"fmt"
	"strings"

	"entgo.io/ent"
	entschema "entgo.io/ent/dialect/sql/schema"

	"github.com/papercomputeco/parley/pkg/storage/ent/schema"
)

// ExchangesTable is the table that stores schema.Exchange rows.
const ExchangesTable = "exchanges"

// Tables returns the migration tables described by the ent schema.
func Tables() ([]*entschema.Table, error) {
	t, err := table(ExchangesTable, "exchange", schema.Exchange{}.Fields(), schema.Exchange{}.Indexes())
	if err != nil {
		return nil, err
	}
	return []*entschema.Table{t}, nil
}

// table converts ent field and index descriptors into a migration table.
// The "id" field becomes the primary key.
func table(name, indexPrefix string, fields []ent.Field, indexes []ent.Index) (*entschema.Table, error) {
	t := entschema.NewTable(name)

	for _, f := range fields {
		d := f.Descriptor()
		if d.Err != nil {
			return nil, fmt.Errorf("field %q: %w", d.Name, d.Err)
		}

		col := &entschema.Column{
			Name:     d.Name,
			Type:     d.Info.Type,
			Size:     int64(d.Size),
			Unique:   d.Unique,
			Nullable: d.Optional || d.Nillable,
		}

		if d.Name == "id" {
			t.AddPrimary(col)
			continue
		}
		t.AddColumn(col)
	}

	for _, idx := range indexes {
		d := idx.Descriptor()
		idxName := d.StorageKey
		if idxName == "" {
			idxName = indexPrefix + "_" + strings.Join(d.Fields, "_")
		}
		t.AddIndex(idxName, d.Unique, d.Fields)
	}

	return t, nil
}
