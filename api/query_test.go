package api

import (
	"net/http/httptest"
	"testing"
)

func TestSkipLimitClampsAndDefaults(t *testing.T) {
	cases := []struct {
		name     string
		url      string
		maxLimit int
		want     SkipLimit
	}{
		{"defaults", "/posts", 100, SkipLimit{Skip: 0, Limit: DefaultLimit}},
		{"explicit", "/posts?skip=40&limit=10", 100, SkipLimit{Skip: 40, Limit: 10}},
		{"negative skip clamped to zero", "/posts?skip=-5", 100, SkipLimit{Skip: 0, Limit: DefaultLimit}},
		{"zero limit falls back to default", "/posts?limit=0", 100, SkipLimit{Skip: 0, Limit: DefaultLimit}},
		{"limit clamped to max", "/posts?limit=500", 100, SkipLimit{Skip: 0, Limit: 100}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", c.url, nil)
			got := Query(r).SkipLimit(c.maxLimit)
			if got != c.want {
				t.Errorf("SkipLimit() = %+v, want %+v", got, c.want)
			}
		})
	}
}
