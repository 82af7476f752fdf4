package pagecontext

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Resolve(t *testing.T) {
	tests := []struct {
		path string
		want Context
	}{
		{"/", Context{"home", "/"}},
		{"", Context{"home", "/"}},
		{"/search?q=kimchi", Context{"search", "/search"}},
		{"/search/", Context{"search", "/search"}},
		{"/restaurants/42", Context{"restaurant_detail", "/restaurants/:restaurantId"}},
		{"/restaurants/42/reviews/new", Context{"review_write", "/restaurants/:restaurantId/reviews/new"}},
		{"/groups", Context{"group_list", "/groups"}},
		{"/groups/7", Context{"group_detail", "/groups/:groupId"}},
		{"/groups/7/chat#latest", Context{"group_chat", "/groups/:groupId/chat"}},
		{"/favorites", Context{"favorites", "/favorites"}},
		{"/notifications", Context{"notifications", "/notifications"}},
		{"/mypage", Context{"my_page", "/mypage"}},
		{"/login", Context{"login", "/login"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Default().Resolve(tt.path))
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		path string
		want Context
	}{
		{"/events/123", Context{"events_id", "/events/:id"}},
		{"/events/3f2504e0-4f89-11d3-9a0c-0305e82c3301/photos", Context{"events_id_photos", "/events/:id/photos"}},
		{"/orders/deadbeefdeadbeef00", Context{"orders_id", "/orders/:id"}},
		{"/settings/profile", Context{"settings_profile", "/settings/profile"}},
		{"/coupons/abc", Context{"coupons_abc", "/coupons/abc"}},
		{"/?tab=1", Context{"home", "/"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Default().Resolve(tt.path))
		})
	}
}

func TestTable_FirstMatchWinsAndWildcard(t *testing.T) {
	table, err := NewTable([]Route{
		{Pattern: "/docs/*", PageKey: "docs"},
		{Pattern: "/docs/:slug", PageKey: "doc_detail"},
	})
	require.NoError(t, err)

	assert.Equal(t, Context{"docs", "/docs/*"}, table.Resolve("/docs/intro"))
	assert.Equal(t, Context{"docs", "/docs/*"}, table.Resolve("/docs"))
	assert.Equal(t, Context{"docs", "/docs/*"}, table.Resolve("/docs/a/b/c"))
	assert.Equal(t, "/other", table.Resolve("/other").PathTemplate)
}

func TestNewTable_RejectsInvalidRoutes(t *testing.T) {
	_, err := NewTable([]Route{
		{Pattern: "no-slash", PageKey: "x"},
		{Pattern: "/a/*/b", PageKey: "y"},
		{Pattern: "/a", PageKey: ""},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "route[0]")
	assert.Contains(t, err.Error(), "route[1]")
	assert.Contains(t, err.Error(), "route[2]")
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
routes:
  - pattern: /shops/:shopId
    pageKey: shop_detail
`), 0o644))

	table, err := LoadTable(path)
	require.NoError(t, err)
	assert.Equal(t, []Route{{Pattern: "/shops/:shopId", PageKey: "shop_detail"}}, table.Routes())
	assert.Equal(t, Context{"shop_detail", "/shops/:shopId"}, table.Resolve("/shops/9"))

	_, err = LoadTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
