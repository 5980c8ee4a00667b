// Package parser handles HTML parsing and link extraction.
package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// linkXPath selects every href carrier the crawler follows: anchors and
// link elements, in document order. A single descendant walk is used
// rather than a union, so <a> and <link> matches stay interleaved.
const linkXPath = `/descendant::*[self::a or self::link]/@href`

// ExtractLinks parses an HTML document and returns the raw href values
// of all <a> and <link> elements, in document order. Empty hrefs are
// dropped. A parse failure yields no links.
func ExtractLinks(body []byte) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	nodes, err := htmlquery.QueryAll(doc, linkXPath)
	if err != nil {
		return nil, fmt.Errorf("link query failed: %w", err)
	}

	var hrefs []string
	for _, node := range nodes {
		// Attribute matches surface as synthetic nodes whose inner
		// text is the attribute value.
		href := strings.TrimSpace(htmlquery.InnerText(node))
		if href != "" {
			hrefs = append(hrefs, href)
		}
	}
	return hrefs, nil
}
