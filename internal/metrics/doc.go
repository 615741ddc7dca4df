/*
Package metrics records per-batch Prometheus metrics.

A Recorder owns a private registry so batches and tests never share global
state. The CLI writes the registry to a node_exporter textfile after each run
when metrics.textfile_path is configured.

# Available Metrics

  - gifwright_files_total: files processed, labelled by result
  - gifwright_file_duration_seconds: end-to-end time per file (histogram)
  - gifwright_retries_total: reduced-settings retries
  - gifwright_predictions_total: settings source, labelled exact, similar or static
  - gifwright_cache_lookups_total: cache lookups, labelled by cache and result
  - gifwright_cache_writes_total: cache writes, labelled by cache and result
  - gifwright_duplicates_total: duplicate candidates, labelled by tier
  - gifwright_decisions_total: disposition decisions, labelled by action
  - gifwright_breaker_state: probe circuit breaker state (0 closed, 1 half-open, 2 open)
  - gifwright_batch_workers: workers used by the last batch
  - gifwright_batch_duration_seconds: wall time of the last batch
  - gifwright_last_batch_timestamp_seconds: completion time of the last batch
*/
package metrics
