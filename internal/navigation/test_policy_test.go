package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanSources(t *testing.T) {
	tests := []struct {
		name string
		in   Signals
		want Plan
	}{
		{
			name: "under test only asks the authenticated origin",
			in:   Signals{UnderTest: true, Cookie: true, CacheAvailable: true, FirstLoad: true},
			want: Plan{Auth: true},
		},
		{
			name: "caching disabled",
			in:   Signals{DisableCaching: true, CacheAvailable: true},
			want: Plan{Auth: true},
		},
		{
			name: "first load with cookie",
			in:   Signals{FirstLoad: true, Cookie: true, Online: true, CacheAvailable: true},
			want: Plan{Auth: true, Cache: true, PageDataOnMiss: true},
		},
		{
			name: "first load without cookie",
			in:   Signals{FirstLoad: true, Online: true, CacheAvailable: true},
			want: Plan{CDN: true, Cache: true, PageDataOnMiss: true},
		},
		{
			name: "first load offline",
			in:   Signals{FirstLoad: true, CacheAvailable: true},
			want: Plan{Cache: true, PageDataOnMiss: true},
		},
		{
			name: "later with cookie online",
			in:   Signals{Cookie: true, Online: true, CacheAvailable: true},
			want: Plan{Auth: true, Cache: true, PureOnMiss: true},
		},
		{
			name: "later with cookie offline",
			in:   Signals{Cookie: true, CacheAvailable: true},
			want: Plan{Cache: true, PureOnMiss: true, OfflineOnMiss: true},
		},
		{
			name: "later without cookie online",
			in:   Signals{Online: true, CacheAvailable: true},
			want: Plan{CDN: true, Cache: true},
		},
		{
			name: "later without cookie offline and no cache",
			in:   Signals{},
			want: Plan{OfflineOnMiss: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanSources(tt.in)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlanQueryable(t *testing.T) {
	assert.False(t, Plan{Cache: true}.Queryable())
	assert.True(t, Plan{CDN: true}.Queryable())
	assert.True(t, Plan{Auth: true}.Queryable())
}
