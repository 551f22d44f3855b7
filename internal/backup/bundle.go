// Package backup implements parsing, restoring, and exporting of document
// store backups.
package backup

import (
	"encoding/json"
	"fmt"

	"github.com/empire-compass/compass-server/internal/model"
)

// TemplatesCollection is the one collection whose records embed nested
// sub-collections.
const TemplatesCollection = "Templates"

// Reserved fields of a Templates record representing nested sub-collections.
const (
	questionsField  = "Questions"
	statisticsField = "Statistics"
)

// MalformedError reports backup content that cannot be parsed into a bundle.
// No store writes have happened when it is returned.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string { return "malformed backup: " + e.Reason }

// Metadata is the optional envelope header of an exported backup. It is read
// but never required to match the payload.
type Metadata struct {
	ExportID    string `json:"exportId,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	Collections int    `json:"collections,omitempty"`
	Documents   int    `json:"documents,omitempty"`
	Store       string `json:"store,omitempty"`
}

// Bundle is a parsed backup: collection name to ordered document records.
// Immutable after ParseBundle.
type Bundle struct {
	Metadata    *Metadata
	Collections map[string][]model.Document
}

type envelope struct {
	Metadata *Metadata       `json:"metadata"`
	Data     json.RawMessage `json:"data"`
}

// ParseBundle parses backup content. The content is either a direct mapping
// from collection name to record array, or a {metadata, data} envelope
// holding that mapping; the envelope is unwrapped exactly once.
func ParseBundle(content []byte) (*Bundle, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(content, &top); err != nil {
		return nil, &MalformedError{Reason: "not a JSON object: " + err.Error()}
	}

	b := &Bundle{}
	if raw, ok := top["data"]; ok && isJSONObject(raw) {
		var env envelope
		if err := json.Unmarshal(content, &env); err != nil {
			return nil, &MalformedError{Reason: "invalid envelope: " + err.Error()}
		}
		b.Metadata = env.Metadata
		top = nil
		if err := json.Unmarshal(env.Data, &top); err != nil {
			return nil, &MalformedError{Reason: "invalid data payload: " + err.Error()}
		}
	}

	b.Collections = make(map[string][]model.Document, len(top))
	for name, raw := range top {
		// Unmarshal alone is not enough: null decodes into a nil slice and
		// null elements decode into nil records, both without error.
		if !isJSONArray(raw) {
			return nil, &MalformedError{Reason: fmt.Sprintf("collection %q is not an array of records", name)}
		}
		var docs []model.Document
		if err := json.Unmarshal(raw, &docs); err != nil {
			return nil, &MalformedError{Reason: fmt.Sprintf("collection %q is not an array of records", name)}
		}
		for _, doc := range docs {
			if doc == nil {
				return nil, &MalformedError{Reason: fmt.Sprintf("collection %q contains a null record", name)}
			}
		}
		b.Collections[name] = docs
	}
	return b, nil
}

// DocumentCount returns the total number of records in the bundle, including
// the embedded sub-collection records of Templates entries.
func (b *Bundle) DocumentCount() int {
	total := 0
	for name, docs := range b.Collections {
		total += len(docs)
		if name != TemplatesCollection {
			continue
		}
		for _, doc := range docs {
			total += len(arrayField(doc, questionsField))
			total += len(arrayField(doc, statisticsField))
		}
	}
	return total
}

func isJSONObject(raw json.RawMessage) bool { return firstByte(raw) == '{' }
func isJSONArray(raw json.RawMessage) bool  { return firstByte(raw) == '[' }

func firstByte(raw json.RawMessage) byte {
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return c
	}
	return 0
}

// stringField returns a string-valued field, or "" if absent or not a string.
func stringField(doc model.Document, key string) string {
	v, _ := doc[key].(string)
	return v
}

// arrayField returns an array-valued field; missing or non-array means empty.
func arrayField(doc model.Document, key string) []any {
	v, _ := doc[key].([]any)
	return v
}

// asDocument converts a decoded JSON value into a record, or nil if it is
// not an object.
func asDocument(v any) model.Document {
	switch m := v.(type) {
	case model.Document:
		return m
	case map[string]any:
		return model.Document(m)
	default:
		return nil
	}
}

// cloneWithout copies a record excluding the given fields.
func cloneWithout(doc model.Document, exclude ...string) model.Document {
	out := make(model.Document, len(doc))
outer:
	for k, v := range doc {
		for _, ex := range exclude {
			if k == ex {
				continue outer
			}
		}
		out[k] = v
	}
	return out
}
