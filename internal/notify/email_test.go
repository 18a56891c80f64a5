package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urlwiz/domainwizard/features/listing"
	"github.com/urlwiz/domainwizard/features/search"
)

func TestRenderUpdate(t *testing.T) {
	name := "Ada"
	summary := "coffee brands"
	price := int64(250)

	s := &search.Search{UUID: "u-1", Prompt: "ignored", Name: &name, Summary: &summary}
	fresh := []listing.Match{
		{URL: "coffeeroasters.com", Link: "https://auctions.godaddy.com/1", Price: &price},
		{URL: "beanbox.io", Link: "https://www.namecheap.com/market/2"},
	}

	html, err := renderUpdate(s, fresh)
	require.NoError(t, err)

	body := string(html)
	assert.Contains(t, body, "Hi Ada,")
	assert.Contains(t, body, "coffee brands")
	assert.Contains(t, body, `href="https://auctions.godaddy.com/1"`)
	assert.Contains(t, body, "coffeeroasters.com")
	assert.Contains(t, body, "$250")
	assert.Contains(t, body, "beanbox.io")
}

func TestRenderUpdate_FallsBackToPrompt(t *testing.T) {
	s := &search.Search{UUID: "u-1", Prompt: "tea shops"}
	html, err := renderUpdate(s, nil)
	require.NoError(t, err)
	assert.Contains(t, string(html), "tea shops")
}
