// Package upload hands an extraction manifest to the Notion or Airtable
// uploader executable and tracks its progress.
//
// The uploader tools print lines containing "NN%" while they work; each match
// advances the manifest's unit in a progress.Aggregator, and a zero exit
// finishes it. Failures are mapped onto typed errors so callers can tell
// missing credentials from a cancelled run from a tool failure.
package upload
