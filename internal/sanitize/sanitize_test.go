package sanitize

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize_DropsBlockedKeys(t *testing.T) {
	got := Sanitize(map[string]any{
		"query":                 "secret text",
		"resultRestaurantCount": 3,
		"fromPageKey":           "home",
		"resultGroupCount":      0,
		"queryLength":           11,
		"hasFilter":             false,
	})

	assert.NotContains(t, got, "query")
	assert.Equal(t, map[string]any{
		"resultRestaurantCount": 3,
		"fromPageKey":           "home",
		"resultGroupCount":      0,
		"queryLength":           11,
		"hasFilter":             false,
	}, got)
}

func TestSanitize_BlocklistIsCaseInsensitiveAndNested(t *testing.T) {
	got := Sanitize(map[string]any{
		"PhoneNumber": "010-0000-0000",
		"review": map[string]any{
			"rating":        5,
			"ReviewContent": "tasty",
		},
		"images": []any{map[string]any{"imageUrl": "https://x", "width": 10}},
	})

	assert.NotContains(t, got, "PhoneNumber")
	assert.Equal(t, map[string]any{"rating": 5}, got["review"])
	assert.Equal(t, []any{map[string]any{"width": 10}}, got["images"])
}

func TestSanitize_TruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("가", 250)
	got := Sanitize(map[string]any{"label": long, "short": "ok"})

	label, ok := got["label"].(string)
	require.True(t, ok)
	assert.Equal(t, 200, len([]rune(label)))
	assert.Equal(t, "ok", got["short"])
}

func TestSanitize_CapsArrays(t *testing.T) {
	items := make([]any, 45)
	for i := range items {
		items[i] = i
	}
	got := Sanitize(map[string]any{"ids": items, "typed": make([]int, 40)})

	assert.Len(t, got["ids"], 30)
	assert.Equal(t, 29, got["ids"].([]any)[29])
	assert.Len(t, got["typed"], 30)
}

func TestSanitize_TruncatesDeepNesting(t *testing.T) {
	got := Sanitize(map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"c":      map[string]any{"d": 1},
				"list":   []any{1, 2},
				"scalar": "kept",
			},
		},
	})

	assert.Equal(t, map[string]any{
		"a": map[string]any{
			"b": map[string]any{"scalar": "kept"},
		},
	}, got)
}

func TestSanitize_NilPassesThrough(t *testing.T) {
	var ptr *string
	got := Sanitize(map[string]any{"referrer": nil, "ptr": ptr})

	require.Contains(t, got, "referrer")
	assert.Nil(t, got["referrer"])
	require.Contains(t, got, "ptr")
	assert.Nil(t, got["ptr"])
}

func TestSanitize_NormalizesAndDropsUnsupported(t *testing.T) {
	type rank int
	name := "kimchi"
	got := Sanitize(map[string]any{
		"rank":   rank(3),
		"name":   &name,
		"tags":   map[string]string{"cuisine": "korean", "email": "a@b.c"},
		"fn":     func() {},
		"ch":     make(chan int),
		"struct": struct{ X int }{1},
		"intKey": map[int]string{1: "a"},
	})

	assert.Equal(t, int64(3), got["rank"])
	assert.Equal(t, "kimchi", got["name"])
	assert.Equal(t, map[string]any{"cuisine": "korean"}, got["tags"])
	for _, k := range []string{"fn", "ch", "struct", "intKey"} {
		assert.NotContains(t, got, k)
	}
}

func TestSanitize_DropsNonFiniteNumbers(t *testing.T) {
	got := Sanitize(map[string]any{
		"rating": math.NaN(),
		"score":  math.Inf(1),
		"floor":  float32(math.Inf(-1)),
		"scores": []float64{1.5, math.NaN(), 2},
		"ok":     4.5,
		"boxed":  &[]float64{math.Inf(1)}[0],
	})

	assert.Equal(t, map[string]any{
		"scores": []any{1.5, float64(2)},
		"ok":     4.5,
	}, got)
}

func TestSanitize_DoesNotMutateInput(t *testing.T) {
	in := map[string]any{"query": "x", "nested": map[string]any{"email": "y"}}
	_ = Sanitize(in)

	assert.Contains(t, in, "query")
	assert.Contains(t, in["nested"], "email")
	assert.Equal(t, map[string]any{}, Sanitize(nil))
}
