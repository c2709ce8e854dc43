package crawler

import "fmt"

// NoResourcesLabel is the catalog text shown in place of an update date when
// an entry has not published any resources yet.
const NoResourcesLabel = "此番组下暂无作品"

// DefaultGroupID is the publish group id the resource page uses for releases
// without a named group.
const DefaultGroupID = "202"

// Weekday is the catalog group marker an entry is scheduled under.
type Weekday int

var weekdayNames = [...]string{
	"Sunday",
	"Monday",
	"Tuesday",
	"Wednesday",
	"Thursday",
	"Friday",
	"Saturday",
}

// String renders the weekday name, or group-N for the catalog's extra groups.
func (w Weekday) String() string {
	if w >= 0 && int(w) < len(weekdayNames) {
		return weekdayNames[w]
	}
	return fmt.Sprintf("group-%d", int(w))
}

// CatalogEntry is one anime row from the home catalog.
type CatalogEntry struct {
	Weekday         Weekday `json:"weekday" yaml:"weekday"`
	EntryID         string  `json:"entry_id" yaml:"entry_id"`
	CoverImagePath  string  `json:"cover_image_path" yaml:"cover_image_path"`
	LastUpdateLabel string  `json:"last_update_label" yaml:"last_update_label"`
	Title           string  `json:"title" yaml:"title"`
}

// HasResources reports whether the catalog listed any release for the entry.
func (e CatalogEntry) HasResources() bool {
	return e.LastUpdateLabel != NoResourcesLabel
}

// ResourceInfo is one published release listed on an entry's resource page.
type ResourceInfo struct {
	PublishGroupID   string `json:"publish_group_id" yaml:"publish_group_id"`
	PublishGroupName string `json:"publish_group_name" yaml:"publish_group_name"`
	ResourceName     string `json:"resource_name" yaml:"resource_name"`
	MagnetLink       string `json:"magnet_link" yaml:"magnet_link"`
	ResourceSize     string `json:"resource_size" yaml:"resource_size"`
	PublishDate      string `json:"publish_date" yaml:"publish_date"`
	TorrentHref      string `json:"torrent_href" yaml:"torrent_href"`
	EntryID          string `json:"entry_id" yaml:"entry_id"`
}

// Counts reports the number of stored rows per table.
type Counts struct {
	Entries   int `json:"entries" yaml:"entries"`
	Resources int `json:"resources" yaml:"resources"`
}
