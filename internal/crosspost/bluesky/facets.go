package bluesky

import (
	"regexp"

	"github.com/bluesky-social/indigo/api/bsky"
)

// URLs are a scheme followed by anything up to the next whitespace.
var urlPattern = regexp.MustCompile(`https?://\S+`)

// Link is one URL span inside the post text. Offsets are byte positions, as
// required by the richtext facet lexicon.
type Link struct {
	Start int
	End   int
	URI   string
}

// FindLinks scans text for URL spans in order of appearance.
func FindLinks(text string) []Link {
	var links []Link
	for _, loc := range urlPattern.FindAllStringIndex(text, -1) {
		links = append(links, Link{
			Start: loc[0],
			End:   loc[1],
			URI:   text[loc[0]:loc[1]],
		})
	}
	return links
}

// buildFacets turns URL spans into clickable link facets. Text outside the
// spans stays plain.
func buildFacets(links []Link) []*bsky.RichtextFacet {
	if len(links) == 0 {
		return nil
	}
	facets := make([]*bsky.RichtextFacet, 0, len(links))
	for _, link := range links {
		facets = append(facets, &bsky.RichtextFacet{
			Index: &bsky.RichtextFacet_ByteSlice{
				ByteStart: int64(link.Start),
				ByteEnd:   int64(link.End),
			},
			Features: []*bsky.RichtextFacet_Features_Elem{
				{
					RichtextFacet_Link: &bsky.RichtextFacet_Link{
						Uri: link.URI,
					},
				},
			},
		})
	}
	return facets
}
