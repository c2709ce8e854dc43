// Package parser extracts catalog and resource rows from mikan HTML pages.
// Every function is pure: markup in, rows out.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/mikan-crawler/internal/crawler"
)

var updateDateLabel = regexp.MustCompile(`^\d{4}/\d{1,2}/\d{1,2}`)

// ParseCatalog returns one entry per list item of every weekday group on the
// home page. A malformed group or item is skipped; the entries that did parse
// are returned together with the joined structural errors.
func ParseCatalog(markup []byte) ([]crawler.CatalogEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse catalog markup: %w", err)
	}

	var (
		entries []crawler.CatalogEntry
		errs    []error
	)
	groups := doc.Find("div.sk-bangumi")
	for i := range groups.Nodes {
		group := groups.Eq(i)
		rawDay, ok := group.Attr("data-dayofweek")
		if !ok {
			errs = append(errs, crawler.NewStructuralError("div.sk-bangumi[data-dayofweek]", fmt.Sprintf("group #%d", i)))
			continue
		}
		day, err := strconv.Atoi(strings.TrimSpace(rawDay))
		if err != nil {
			errs = append(errs, crawler.NewStructuralError("numeric data-dayofweek", fmt.Sprintf("got %q", rawDay)))
			continue
		}

		items := group.Find("li")
		for j := range items.Nodes {
			entry, err := parseCatalogItem(items.Eq(j), crawler.Weekday(day))
			if err != nil {
				errs = append(errs, err)
				continue
			}
			entries = append(entries, entry)
		}
	}
	return entries, errors.Join(errs...)
}

func parseCatalogItem(li *goquery.Selection, day crawler.Weekday) (crawler.CatalogEntry, error) {
	entry := crawler.CatalogEntry{Weekday: day}

	span := li.ChildrenFiltered("span[data-bangumiid]").First()
	if span.Length() == 0 {
		return entry, crawler.NewStructuralError("span[data-bangumiid]", "weekday "+day.String())
	}
	entry.EntryID = strings.TrimSpace(span.AttrOr("data-bangumiid", ""))
	src, ok := span.Attr("data-src")
	if !ok {
		return entry, crawler.NewStructuralError("span[data-src]", "entry "+entry.EntryID)
	}
	entry.CoverImagePath = strings.TrimSpace(src)

	found := false
	li.ChildrenFiltered("div").EachWithBreak(func(_ int, div *goquery.Selection) bool {
		fragments := textFragments(div)
		if len(fragments) < 2 {
			return true
		}
		label := fragments[0]
		if label != crawler.NoResourcesLabel && !updateDateLabel.MatchString(label) {
			return true
		}
		entry.LastUpdateLabel = label
		entry.Title = strings.Join(fragments[1:], " ")
		found = true
		return false
	})
	if !found {
		return entry, crawler.NewStructuralError("update label and title", "entry "+entry.EntryID)
	}
	return entry, nil
}

// textFragments returns the trimmed, non-empty text nodes under sel in
// document order.
func textFragments(sel *goquery.Selection) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				out = append(out, s)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return out
}
