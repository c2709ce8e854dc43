package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/mikan-crawler/internal/crawler"
)

type eventKind int

const (
	groupHeader eventKind = iota
	resourceRow
)

// event is one element of the resource page in document order. Headers set
// the group context for every row that follows until the next header.
type event struct {
	kind      eventKind
	groupID   string
	groupName string
	row       crawler.ResourceInfo
}

// ParseResources returns the releases listed on an entry's resource page,
// each tagged with the publish group heading it.
func ParseResources(markup []byte, entryID string) ([]crawler.ResourceInfo, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse resource markup: %w", err)
	}
	events, err := scanEvents(doc)
	if err != nil {
		return nil, err
	}
	return foldEvents(events, entryID), nil
}

func scanEvents(doc *goquery.Document) ([]event, error) {
	nodes := doc.Find("div .subgroup-text, tbody > tr")
	events := make([]event, 0, nodes.Length())
	for i := range nodes.Nodes {
		sel := nodes.Eq(i)
		var (
			ev  event
			err error
		)
		if goquery.NodeName(sel) == "tr" {
			ev, err = scanRow(sel)
		} else {
			ev, err = scanHeader(sel)
		}
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func scanHeader(sel *goquery.Selection) (event, error) {
	id, ok := sel.Attr("id")
	if !ok {
		return event{}, crawler.NewStructuralError("subgroup-text[id]", "")
	}
	ev := event{kind: groupHeader, groupID: id}
	if id == crawler.DefaultGroupID {
		if fragments := textFragments(sel); len(fragments) > 0 {
			ev.groupName = fragments[0]
		}
		return ev, nil
	}
	link := sel.Find("a").First()
	if link.Length() == 0 {
		return event{}, crawler.NewStructuralError("subgroup-text a", "group "+id)
	}
	ev.groupName = strings.TrimSpace(link.Text())
	return ev, nil
}

func scanRow(tr *goquery.Selection) (event, error) {
	cells := tr.Find("td")
	if cells.Length() < 4 {
		return event{}, crawler.NewStructuralError("td", fmt.Sprintf("row has %d cells, want 4", cells.Length()))
	}

	nameLink := cells.Eq(0).Find("a").First()
	if nameLink.Length() == 0 {
		return event{}, crawler.NewStructuralError("resource name link", "")
	}
	name := strings.TrimSpace(nameLink.Text())
	magnet, ok := nameLink.NextAllFiltered("[data-clipboard-text]").First().Attr("data-clipboard-text")
	if !ok {
		return event{}, crawler.NewStructuralError("data-clipboard-text", name)
	}
	torrent, ok := cells.Eq(3).Find("a").First().Attr("href")
	if !ok {
		return event{}, crawler.NewStructuralError("torrent link", name)
	}

	return event{
		kind: resourceRow,
		row: crawler.ResourceInfo{
			ResourceName: name,
			MagnetLink:   strings.TrimSpace(magnet),
			ResourceSize: strings.TrimSpace(cells.Eq(1).Text()),
			PublishDate:  strings.TrimSpace(cells.Eq(2).Text()),
			TorrentHref:  strings.TrimSpace(torrent),
		},
	}, nil
}

// foldEvents carries the current group context across the event stream.
func foldEvents(events []event, entryID string) []crawler.ResourceInfo {
	var (
		groupID, groupName string
		out                []crawler.ResourceInfo
	)
	for _, ev := range events {
		switch ev.kind {
		case groupHeader:
			groupID, groupName = ev.groupID, ev.groupName
		case resourceRow:
			row := ev.row
			row.PublishGroupID = groupID
			row.PublishGroupName = groupName
			row.EntryID = entryID
			out = append(out, row)
		}
	}
	return out
}
