// Package crawler holds the types, collaborator interfaces, and error
// sentinels shared by the mikan fetcher, parser, stores, and pipeline.
package crawler
