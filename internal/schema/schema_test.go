package schema

import (
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-mastermind/internal/models"
)

func TestParse(t *testing.T) {
	doc, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "AnalysisResult", doc.Title)
	assert.Contains(t, doc.ID, "/"+Version+".json")
}

func TestJSONReturnsCopy(t *testing.T) {
	a := JSON()
	a[0] = 'x'
	assert.Equal(t, byte('{'), JSON()[0])
}

func TestSchemaMatchesModels(t *testing.T) {
	doc, err := Parse()
	require.NoError(t, err)
	compare(t, "$", doc, reflect.TypeOf(models.AnalysisResult{}))
}

func compare(t *testing.T, path string, doc *Document, typ reflect.Type) {
	t.Helper()
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}

	switch typ.Kind() {
	case reflect.Slice:
		require.NotNil(t, doc.Items, "%s: array schema without items", path)
		compare(t, path+"[]", doc.Items, typ.Elem())
		return
	case reflect.Struct:
	default:
		assert.Nil(t, doc.Properties, "%s: scalar field described as object", path)
		return
	}

	fields := map[string]reflect.Type{}
	for i := 0; i < typ.NumField(); i++ {
		name, _, _ := strings.Cut(typ.Field(i).Tag.Get("json"), ",")
		fields[name] = typ.Field(i).Type
	}
	assert.Equal(t, sortedKeys(fields), sortedKeys(doc.Properties), "%s: property names", path)

	for name, fieldType := range fields {
		child, ok := doc.Properties[name]
		if !ok {
			continue
		}
		compare(t, path+"."+name, child, fieldType)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
