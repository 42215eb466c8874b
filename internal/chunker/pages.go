package chunker

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
)

// matchTokens is how many leading tokens of a chunk are compared against
// page text when assigning a locator.
const matchTokens = 10

// PageIndex maps a 1-based page number to the text spans laid out on it.
type PageIndex map[int][]string

// Pages returns the page numbers in ascending order.
func (p PageIndex) Pages() []int {
	return slices.Sorted(maps.Keys(p))
}

// Assign returns the page whose spans contain the most of the first ten
// whitespace tokens of text. A token counts for a page when it is a
// substring of any span on that page. Ties keep the lowest page. It returns
// 0 when no page shares a token, or when p is empty.
//
// The match is a heuristic; callers must validate locators before citing them.
func (p PageIndex) Assign(text string) int {
	if len(p) == 0 {
		return 0
	}
	tokens := strings.Fields(text)
	if len(tokens) > matchTokens {
		tokens = tokens[:matchTokens]
	}
	if len(tokens) == 0 {
		return 0
	}

	best, bestScore := 0, 0
	for _, page := range p.Pages() {
		score := 0
		for _, tok := range tokens {
			if containsAny(p[page], tok) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = page, score
		}
	}
	return best
}

// containsAny reports whether any span contains tok.
func containsAny(spans []string, tok string) bool {
	for _, s := range spans {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

// ParseLayout reads a PDF layout export (pdf_info[].para_blocks[].lines[].spans[])
// and returns the text spans of every text block keyed by page. page_idx is
// 0-based in the export and 1-based in the returned index.
func ParseLayout(data []byte) (PageIndex, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("chunker: layout is not valid JSON")
	}
	info := gjson.GetBytes(data, "pdf_info")
	if !info.IsArray() {
		return nil, fmt.Errorf("chunker: layout has no pdf_info array")
	}

	index := make(PageIndex)
	info.ForEach(func(_, page gjson.Result) bool {
		idx := page.Get("page_idx")
		if !idx.Exists() {
			return true
		}
		pageNo := int(idx.Int()) + 1
		spans := index[pageNo]

		page.Get("para_blocks").ForEach(func(_, block gjson.Result) bool {
			if block.Get("type").String() != "text" {
				return true
			}
			block.Get("lines").ForEach(func(_, line gjson.Result) bool {
				line.Get("spans").ForEach(func(_, span gjson.Result) bool {
					if s := strings.TrimSpace(span.Get("content").String()); s != "" {
						spans = append(spans, s)
					}
					return true
				})
				return true
			})
			return true
		})

		index[pageNo] = spans
		return true
	})

	return index, nil
}
