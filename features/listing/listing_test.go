package listing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/urlwiz/domainwizard/features/listing"
)

func TestLowQuality(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"coffeeroasters.com", false},
		{"a1b2.com", false},
		{"shop24.io", false},
		{"abc123.com", true},
		{"4527substack.net", true},
		{"best-1000-deals.com", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, listing.LowQuality(tc.url), tc.url)
	}
}
