package bluesky

import (
	"time"

	"forecastbot/internal/types"

	"github.com/bluesky-social/indigo/api/bsky"
)

const maxPostRunes = 300

type Post struct {
	Segments []Segment
	Embed    *EmbedData
}

type Segment struct {
	Text string
	URI  string
}

type EmbedData struct {
	URI         string
	Title       string
	Description string
}

type RichText struct {
	Text   string
	Facets []*bsky.RichtextFacet
}

// FromMessage lays out the title, summary and first link so the whole post
// fits within Bluesky's limit. The summary absorbs any truncation.
func FromMessage(msg *types.Message) Post {
	var p Post
	var link *types.Link
	if len(msg.Links) > 0 {
		link = &msg.Links[0]
	}

	title := truncateRunes(msg.Title, 120)
	budget := maxPostRunes - runeLen(title)
	if link != nil {
		budget -= runeLen("\n\nDetails")
	}

	p.Segments = append(p.Segments, Segment{Text: title})
	if msg.Summary != "" && budget > 10 {
		p.Segments = append(p.Segments, Segment{Text: "\n\n" + truncateRunes(msg.Summary, budget-2)})
	}

	if link != nil {
		p.Segments = append(p.Segments, Segment{Text: "\n\n"})
		p.Segments = append(p.Segments, Segment{Text: "Details", URI: link.URL})
		p.Embed = &EmbedData{
			URI:         link.URL,
			Title:       msg.Title,
			Description: msg.Summary,
		}
	}
	return p
}

// Into flattens segments into post text and link facets. Facet offsets are
// byte offsets into the UTF-8 text.
func (p *Post) Into() RichText {
	var text string
	var facets []*bsky.RichtextFacet

	for _, seg := range p.Segments {
		if seg.Text == "" {
			continue
		}

		start := int64(len(text))
		text += seg.Text
		end := int64(len(text))

		if seg.URI != "" {
			facets = append(facets, &bsky.RichtextFacet{
				Index: &bsky.RichtextFacet_ByteSlice{
					ByteStart: start,
					ByteEnd:   end,
				},
				Features: []*bsky.RichtextFacet_Features_Elem{
					{
						RichtextFacet_Link: &bsky.RichtextFacet_Link{
							Uri: seg.URI,
						},
					},
				},
			})
		}
	}

	return RichText{Text: text, Facets: facets}
}

func (e *EmbedData) Into() *bsky.EmbedExternal_External {
	return &bsky.EmbedExternal_External{
		Uri:         e.URI,
		Title:       truncateRunes(e.Title, 300),
		Description: truncateRunes(e.Description, 300),
	}
}

func BuildPost(richText RichText, embed *EmbedData, languages []string, now time.Time) *bsky.FeedPost {
	post := &bsky.FeedPost{
		CreatedAt: now.UTC().Format(time.RFC3339),
		Langs:     languages,
		Text:      richText.Text,
		Facets:    richText.Facets,
	}

	if embed != nil {
		post.Embed = &bsky.FeedPost_Embed{
			EmbedExternal: &bsky.EmbedExternal{
				External: embed.Into(),
			},
		}
	}
	return post
}

func runeLen(s string) int {
	return len([]rune(s))
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 1 {
		return string(r[:limit])
	}
	return string(r[:limit-1]) + "…"
}
