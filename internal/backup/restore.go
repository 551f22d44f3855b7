package backup

import (
	"context"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/empire-compass/compass-server/internal/docstore"
	"github.com/empire-compass/compass-server/internal/model"
)

// DefaultBatchSize bounds the number of documents per atomic batch write.
const DefaultBatchSize = 400

// ProgressFunc receives incremental restore progress. It is called before each
// collection and after each committed batch.
type ProgressFunc func(model.RestoreProgress)

// Restorer replays a parsed backup into the document store using bounded
// atomic batches. Writes are destructive upserts, so re-running a restore
// with the same content is safe.
type Restorer struct {
	store     docstore.Store
	log       *zap.Logger
	batchSize int
}

// NewRestorer constructs a restorer with the default batch size.
func NewRestorer(store docstore.Store, log *zap.Logger) *Restorer {
	return &Restorer{store: store, log: log, batchSize: DefaultBatchSize}
}

// NewRestorerWithBatchSize constructs a restorer with a custom batch bound.
func NewRestorerWithBatchSize(store docstore.Store, log *zap.Logger, batchSize int) *Restorer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Restorer{store: store, log: log, batchSize: batchSize}
}

// Restore parses the backup content and replays it. Failures of any kind are
// reported through the result; the caller never sees a raw error.
func (r *Restorer) Restore(ctx context.Context, content []byte, onProgress ProgressFunc) model.RestoreResult {
	bundle, err := ParseBundle(content)
	if err != nil {
		return failure(err.Error(), 0, 0)
	}
	return r.RestoreBundle(ctx, bundle, onProgress)
}

// RestoreBundle replays an already-parsed bundle. Collections are processed
// in sorted name order; ordering is a progress-reporting nicety, not a
// correctness requirement. A failing write aborts the remainder, leaving
// earlier batches committed.
func (r *Restorer) RestoreBundle(ctx context.Context, bundle *Bundle, onProgress ProgressFunc) model.RestoreResult {
	names := make([]string, 0, len(bundle.Collections))
	for name := range bundle.Collections {
		names = append(names, name)
	}
	sort.Strings(names)

	st := &restoreState{
		onProgress:       onProgress,
		collectionsTotal: len(names),
		documentsTotal:   bundle.DocumentCount(),
	}

	for _, name := range names {
		docs := bundle.Collections[name]
		if len(docs) == 0 {
			st.collectionsDone++
			continue
		}
		st.collection = name
		st.report()

		var err error
		if name == TemplatesCollection {
			err = r.restoreTemplates(ctx, docs, st)
		} else {
			err = r.restoreFlat(ctx, name, docs, st)
		}
		if err != nil {
			r.log.Error("restore aborted",
				zap.String("collection", name),
				zap.Int("documentsRestored", st.documentsDone),
				zap.Error(err),
			)
			return failure(err.Error(), st.collectionsRestored, st.documentsDone)
		}
		st.collectionsDone++
		st.collectionsRestored++
	}

	return model.RestoreResult{
		Success:             true,
		CollectionsRestored: st.collectionsRestored,
		DocumentsRestored:   st.documentsDone,
		Timestamp:           time.Now().UTC().Format(time.RFC3339),
	}
}

// restoreFlat writes a plain collection in atomic batches. Records without an
// id are skipped: there is no key to restore them under.
func (r *Restorer) restoreFlat(ctx context.Context, name string, docs []model.Document, st *restoreState) error {
	batch := make([]docstore.Write, 0, r.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.store.SetBatch(ctx, batch); err != nil {
			return err
		}
		st.documentsDone += len(batch)
		batch = batch[:0]
		st.report()
		return nil
	}

	for _, doc := range docs {
		id := stringField(doc, "id")
		if id == "" {
			continue
		}
		batch = append(batch, docstore.Write{
			Collection: name,
			ID:         id,
			Body:       cloneWithout(doc, "id"),
		})
		if len(batch) == r.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// restoreTemplates writes each template record sequentially: the parent
// document first, then its Questions and Statistics sub-collections in
// batches. Sequential processing keeps batch bounds per sub-collection.
func (r *Restorer) restoreTemplates(ctx context.Context, docs []model.Document, st *restoreState) error {
	for _, doc := range docs {
		id := stringField(doc, "id")
		if id == "" {
			continue
		}

		body := cloneWithout(doc, "id", questionsField, statisticsField)
		if err := r.store.Set(ctx, TemplatesCollection, id, body); err != nil {
			return err
		}
		st.documentsDone++

		subs := []struct {
			field  string
			prefix string
		}{
			{questionsField, "query_"},
			{statisticsField, "stat_"},
		}
		for _, sub := range subs {
			n, err := r.restoreChildren(ctx, id, sub.field, sub.prefix, arrayField(doc, sub.field))
			if err != nil {
				return err
			}
			st.documentsDone += n
		}

		// Progress per template record, mirroring flat batch granularity.
		st.report()
	}
	return nil
}

// restoreChildren batches one sub-collection of a template. A child's key is
// its id, else its uid, else a positional fallback so the write is never
// silently dropped. The keying field is stripped from the stored body.
func (r *Restorer) restoreChildren(ctx context.Context, templateID, subName, prefix string, children []any) (int, error) {
	path := docstore.SubPath(TemplatesCollection, templateID, subName)
	written := 0
	batch := make([]docstore.Write, 0, r.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.store.SetBatch(ctx, batch); err != nil {
			return err
		}
		written += len(batch)
		batch = batch[:0]
		return nil
	}

	for i, raw := range children {
		child := asDocument(raw)
		if child == nil {
			continue
		}
		w := docstore.Write{Collection: path}
		switch {
		case stringField(child, "id") != "":
			w.ID = stringField(child, "id")
			w.Body = cloneWithout(child, "id")
		case stringField(child, "uid") != "":
			w.ID = stringField(child, "uid")
			w.Body = cloneWithout(child, "uid")
		default:
			// Positional fallback, deterministic for identical content.
			w.ID = prefix + strconv.Itoa(i)
			w.Body = cloneWithout(child)
		}
		batch = append(batch, w)
		if len(batch) == r.batchSize {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	if err := flush(); err != nil {
		return written, err
	}
	return written, nil
}

type restoreState struct {
	onProgress ProgressFunc

	collection          string
	collectionsDone     int
	collectionsRestored int
	collectionsTotal    int
	documentsDone       int
	documentsTotal      int
}

func (st *restoreState) report() {
	if st.onProgress == nil {
		return
	}
	st.onProgress(model.RestoreProgress{
		Collection:       st.collection,
		CollectionsDone:  st.collectionsDone,
		CollectionsTotal: st.collectionsTotal,
		DocumentsDone:    st.documentsDone,
		DocumentsTotal:   st.documentsTotal,
	})
}

func failure(msg string, collections, documents int) model.RestoreResult {
	return model.RestoreResult{
		Success:             false,
		CollectionsRestored: collections,
		DocumentsRestored:   documents,
		Timestamp:           time.Now().UTC().Format(time.RFC3339),
		Error:               msg,
	}
}
