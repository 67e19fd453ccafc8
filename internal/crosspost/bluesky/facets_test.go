package bluesky

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindLinks(t *testing.T) {
	assert := assert.New(t)

	t.Run("two urls produce exactly two spans", func(t *testing.T) {
		text := "see https://a.example and https://b.example now"
		links := FindLinks(text)
		require.Len(t, links, 2)

		assert.Equal("https://a.example", links[0].URI)
		assert.Equal("https://a.example", text[links[0].Start:links[0].End])
		assert.Equal("https://b.example", links[1].URI)
		assert.Equal("https://b.example", text[links[1].Start:links[1].End])
	})

	t.Run("plain text yields no links", func(t *testing.T) {
		assert.Empty(FindLinks("no links here"))
	})

	t.Run("offsets are bytes even after multibyte text", func(t *testing.T) {
		text := "日本語 https://例.example 終"
		links := FindLinks(text)
		require.Len(t, links, 1)
		assert.Equal(links[0].URI, text[links[0].Start:links[0].End])
	})

	t.Run("http scheme matches too", func(t *testing.T) {
		links := FindLinks("legacy http://old.example link")
		require.Len(t, links, 1)
		assert.Equal("http://old.example", links[0].URI)
	})
}

func TestBuildFacets(t *testing.T) {
	assert := assert.New(t)

	text := "see https://a.example and https://b.example now"
	facets := buildFacets(FindLinks(text))
	require.Len(t, facets, 2)

	first := facets[0]
	assert.Equal(int64(4), first.Index.ByteStart)
	assert.Equal(int64(21), first.Index.ByteEnd)
	require.Len(t, first.Features, 1)
	require.NotNil(t, first.Features[0].RichtextFacet_Link)
	assert.Equal("https://a.example", first.Features[0].RichtextFacet_Link.Uri)

	assert.Nil(buildFacets(nil))
}
