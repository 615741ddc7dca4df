// Package preflight provides readiness checks for the filesystem paths and
// external tools gifwright depends on.
//
// These checks run in two contexts:
//   - The run command calls RunAll before a batch starts. If any required
//     check fails, the batch is refused rather than failing file by file.
//   - The doctor command prints every result for operators.
//
// Checks are gated by configuration; the recovery directory is only checked
// in quarantine mode.
package preflight
