// Package scrape provides CSS-selector scraping primitives shared by the
// HTML-based ILS adapters (Enterprise, BiblioCommons, Atriuum, Spydus),
// per spec §4.2.2. Strategies are tried in descending specificity; the
// first that yields rows wins.
package scrape

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// ColumnSelectors names the CSS selector for each holding column within a
// row. Selectors are evaluated relative to the row node.
type ColumnSelectors struct {
	Branch     string
	CallNumber string
	Status     string
	Collection string
}

// Strategy names a container selector (rows within the document) plus
// per-column selectors, in descending order of specificity.
type Strategy struct {
	Name      string
	RowSelector string
	Columns   ColumnSelectors
}

// Row is one scraped holding row, with raw (untrimmed-html, trimmed-text)
// column values.
type Row struct {
	Branch     string
	CallNumber string
	Status     string
	Collection string
}

// Parse parses raw HTML into a DOM tree for Extract to walk.
func Parse(body []byte) (*html.Node, error) {
	return html.Parse(strings.NewReader(string(body)))
}

// Extract walks strategies in order and returns the rows produced by the
// first strategy that yields at least one row, together with that
// strategy's name. Returns (nil, "", false) when no strategy matches.
func Extract(doc *html.Node, strategies []Strategy) ([]Row, string, bool) {
	for _, strat := range strategies {
		nodes, err := htmlquery.QueryAll(doc, cssToXPath(strat.RowSelector))
		if err != nil || len(nodes) == 0 {
			continue
		}

		rows := make([]Row, 0, len(nodes))
		for _, n := range nodes {
			rows = append(rows, Row{
				Branch:     textOf(n, strat.Columns.Branch),
				CallNumber: textOf(n, strat.Columns.CallNumber),
				Status:     textOf(n, strat.Columns.Status),
				Collection: textOf(n, strat.Columns.Collection),
			})
		}
		if len(rows) > 0 {
			return rows, strat.Name, true
		}
	}
	return nil, "", false
}

func textOf(row *html.Node, selector string) string {
	if selector == "" {
		return ""
	}
	nodes, err := htmlquery.QueryAll(row, cssToXPath(selector))
	if err != nil || len(nodes) == 0 {
		return ""
	}
	return strings.TrimSpace(htmlquery.InnerText(nodes[0]))
}

// cssToXPath translates the small subset of CSS selectors this package's
// strategies use (tag, .class, #id, [attr], [attr=val], descendant
// combinator) into the XPath htmlquery requires. Pseudo-classes are not
// translated. Adapters only ever author selectors from this subset, so
// this isn't a general CSS engine.
func cssToXPath(selector string) string {
	parts := strings.Fields(selector)
	xpathParts := make([]string, 0, len(parts))
	for _, p := range parts {
		xpathParts = append(xpathParts, descendantStep(p))
	}
	return ".//" + strings.Join(xpathParts, "//")
}

// descendantStep translates one compound CSS token, e.g. "tr.holdingsRow",
// "div#mainContent", "td[data-col=\"status\"]", or ".holdingsRow" on its
// own, into a single XPath step. The element name (if any) always leads;
// every ".class", "#id", and "[attr]"/"[attr=val]" qualifier that follows
// becomes an "and"-joined predicate on that step, so "tr.holdingsRow"
// becomes a predicate on <tr>, not a literal node test for a tag named
// "tr.holdingsRow".
func descendantStep(part string) string {
	tag, quals := splitTagAndQualifiers(part)
	if len(quals) == 0 {
		return orStar(tag)
	}
	preds := make([]string, 0, len(quals))
	for _, q := range quals {
		preds = append(preds, qualifierPredicate(q))
	}
	return fmt.Sprintf("%s[%s]", orStar(tag), strings.Join(preds, " and "))
}

func orStar(tag string) string {
	if tag == "" {
		return "*"
	}
	return tag
}

// splitTagAndQualifiers splits a compound token into its leading element
// name (possibly empty, meaning "any element") and its ".class"/"#id"/
// "[attr]" qualifiers, in order.
func splitTagAndQualifiers(part string) (tag string, quals []string) {
	idx := strings.IndexAny(part, ".#[")
	if idx < 0 {
		return part, nil
	}
	tag = part[:idx]
	rest := part[idx:]

	for i := 0; i < len(rest); {
		switch rest[i] {
		case '.', '#':
			j := i + 1
			for j < len(rest) && rest[j] != '.' && rest[j] != '#' && rest[j] != '[' {
				j++
			}
			quals = append(quals, rest[i:j])
			i = j
		case '[':
			j := strings.IndexByte(rest[i:], ']')
			if j < 0 {
				j = len(rest) - i - 1
			}
			quals = append(quals, rest[i:i+j+1])
			i += j + 1
		default:
			i++
		}
	}
	return tag, quals
}

// qualifierPredicate renders one ".class", "#id", "[attr]", or
// "[attr=val]" qualifier as an XPath predicate (without the enclosing
// brackets of the step itself).
func qualifierPredicate(qual string) string {
	switch qual[0] {
	case '.':
		return fmt.Sprintf(`contains(concat(" ", normalize-space(@class), " "), " %s ")`, qual[1:])
	case '#':
		return fmt.Sprintf(`@id="%s"`, qual[1:])
	default: // '['
		inner := strings.TrimSuffix(strings.TrimPrefix(qual, "["), "]")
		if eq := strings.Index(inner, "="); eq >= 0 {
			attr := inner[:eq]
			val := strings.Trim(inner[eq+1:], `"'`)
			return fmt.Sprintf(`@%s="%s"`, attr, val)
		}
		return fmt.Sprintf(`@%s`, inner)
	}
}
