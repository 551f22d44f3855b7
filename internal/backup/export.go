package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/empire-compass/compass-server/internal/docstore"
	"github.com/empire-compass/compass-server/internal/model"
)

// Exporter serializes the live document store into the envelope format
// accepted by the restorer. Templates documents re-embed their sub-collections
// so the export round-trips through a restore unchanged.
type Exporter struct {
	store   docstore.Store
	storeID string
}

// NewExporter constructs an exporter. storeID identifies the source store in
// the envelope metadata.
func NewExporter(store docstore.Store, storeID string) *Exporter {
	return &Exporter{store: store, storeID: storeID}
}

// Export produces a complete backup envelope of all top-level collections.
func (e *Exporter) Export(ctx context.Context) ([]byte, error) {
	names, err := e.store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}

	data := make(map[string][]model.Document, len(names))
	documents := 0
	for _, name := range names {
		records, err := e.exportCollection(ctx, name)
		if err != nil {
			return nil, err
		}
		data[name] = records
		documents += len(records)
		if name == TemplatesCollection {
			for _, rec := range records {
				documents += len(arrayField(rec, questionsField))
				documents += len(arrayField(rec, statisticsField))
			}
		}
	}

	exportID, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	out := struct {
		Metadata Metadata                    `json:"metadata"`
		Data     map[string][]model.Document `json:"data"`
	}{
		Metadata: Metadata{
			ExportID:    exportID.String(),
			CreatedAt:   time.Now().UTC().Format(time.RFC3339),
			Collections: len(data),
			Documents:   documents,
			Store:       e.storeID,
		},
		Data: data,
	}
	return json.Marshal(out)
}

func (e *Exporter) exportCollection(ctx context.Context, name string) ([]model.Document, error) {
	docs, err := e.store.ListDocuments(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", name, err)
	}

	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]model.Document, 0, len(ids))
	for _, id := range ids {
		rec := cloneWithout(docs[id])
		rec["id"] = id
		if name == TemplatesCollection {
			if err := e.embedChildren(ctx, id, rec); err != nil {
				return nil, err
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// embedChildren attaches a template's sub-collections as arrays, keyed back
// by id so a subsequent restore reproduces the same document paths.
func (e *Exporter) embedChildren(ctx context.Context, templateID string, rec model.Document) error {
	for _, sub := range []string{questionsField, statisticsField} {
		path := docstore.SubPath(TemplatesCollection, templateID, sub)
		children, err := e.store.ListDocuments(ctx, path)
		if err != nil {
			return fmt.Errorf("list %s: %w", path, err)
		}
		if len(children) == 0 {
			continue
		}
		ids := make([]string, 0, len(children))
		for id := range children {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		arr := make([]any, 0, len(ids))
		for _, id := range ids {
			child := cloneWithout(children[id])
			child["id"] = id
			arr = append(arr, child)
		}
		rec[sub] = arr
	}
	return nil
}
