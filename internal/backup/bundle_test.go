package backup

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBundle_DirectMapping(t *testing.T) {
	content := []byte(`{"Papers":[{"id":"p1","title":"A"}],"Users":[]}`)

	b, err := ParseBundle(content)
	require.NoError(t, err)
	require.Nil(t, b.Metadata)
	require.Len(t, b.Collections, 2)
	require.Len(t, b.Collections["Papers"], 1)
	require.Equal(t, "A", b.Collections["Papers"][0]["title"])
	require.Empty(t, b.Collections["Users"])
}

func TestParseBundle_Envelope(t *testing.T) {
	content := []byte(`{
		"metadata": {"exportId":"e1","createdAt":"2026-01-01T00:00:00Z","collections":1,"documents":1,"store":"compass"},
		"data": {"Papers":[{"id":"p1"}]}
	}`)

	b, err := ParseBundle(content)
	require.NoError(t, err)
	require.NotNil(t, b.Metadata)
	require.Equal(t, "e1", b.Metadata.ExportID)
	require.Equal(t, "compass", b.Metadata.Store)
	require.Len(t, b.Collections, 1)
	require.Len(t, b.Collections["Papers"], 1)
}

func TestParseBundle_DataKeyWithArrayIsACollection(t *testing.T) {
	// A top-level "data" array is not an envelope, just a collection named data.
	content := []byte(`{"data":[{"id":"d1"}]}`)

	b, err := ParseBundle(content)
	require.NoError(t, err)
	require.Len(t, b.Collections["data"], 1)
}

func TestParseBundle_Malformed(t *testing.T) {
	cases := map[string]string{
		"invalid json":          `{"Papers":`,
		"top-level array":       `[{"id":"p1"}]`,
		"top-level scalar":      `42`,
		"non-array collection":  `{"Papers":{"id":"p1"}}`,
		"non-object record":     `{"Papers":[1,2]}`,
		"null collection":       `{"Papers":null}`,
		"null record":           `{"Papers":[null]}`,
		"envelope null value":   `{"metadata":{},"data":{"Papers":null}}`,
		"envelope scalar value": `{"metadata":{},"data":{"Papers":"nope"}}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBundle([]byte(content))
			var malformed *MalformedError
			require.ErrorAs(t, err, &malformed)
		})
	}
}

func TestBundle_DocumentCount_IncludesNestedChildren(t *testing.T) {
	content := []byte(`{
		"Papers":[{"id":"p1"},{"id":"p2"}],
		"Templates":[{"id":"T1","Questions":[{"uid":"q1"},{"uid":"q2"}],"Statistics":[{"id":"s1"}]}]
	}`)

	b, err := ParseBundle(content)
	require.NoError(t, err)
	require.Equal(t, 6, b.DocumentCount())
}
