// Package main hosts the mikan command.
//
// Architecture overview:
//   - Configuration: internal/config loads defaults, an optional file and MIKAN_ environment variables through
//     Viper; internal/app turns the result into a logger, a metrics registry and on-demand service builders.
//   - Crawl: internal/pipeline fetches the catalog, replace-upserts its entries, fans out one resource page fetch
//     per stored entry, then downloads missing cover images and torrents. Every stage fans out through a bounded
//     errgroup; only the goroutine running the pipeline touches the store.
//   - Storage: a single transaction per run over SQLite (default) or Postgres, committed at the end and rolled back
//     by Close otherwise. Downloads land in the image and torrent directories through internal/storage/local.
//   - Retention: internal/retention measures the download directories and deletes files older than the age limit
//     once usage exceeds the threshold.
//   - Observability: zap logs to stderr and the log file; Prometheus counters are pushed to a Pushgateway when one
//     is configured.
package main
