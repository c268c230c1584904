// Package preflight provides readiness checks for the directories and
// external services markerflow depends on.
//
// These checks run in two contexts:
//   - The extraction pipeline calls CheckDirectoryAccess on the export
//     destination before spawning any work; a failure aborts the run.
//   - The CLI "markerflow deps" command uses RunAll and CheckSystemDeps to
//     display environment health.
package preflight
