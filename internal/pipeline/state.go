package pipeline

// State is the furthest point a run reached. Runs only move forward.
type State int

// Run states in order.
const (
	Idle State = iota
	CatalogFetched
	ResourcesFetched
	ImagesFetched
	TorrentsFetched
	Committed
)

var stateNames = [...]string{
	Idle:             "idle",
	CatalogFetched:   "catalog_fetched",
	ResourcesFetched: "resources_fetched",
	ImagesFetched:    "images_fetched",
	TorrentsFetched:  "torrents_fetched",
	Committed:        "committed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Stage names used in logs, metrics and reports.
const (
	StageCatalog   = "catalog"
	StageResources = "resources"
	StageImages    = "images"
	StageTorrents  = "torrents"
)
