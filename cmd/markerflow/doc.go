// Command markerflow extracts markers from Final Cut Pro projects and uploads
// the resulting manifests to Notion or Airtable.
//
// `markerflow extract FILE...` runs the extraction pipeline in the
// foreground, `markerflow queue` re-uploads earlier extractions found on disk,
// and the `configs` and `profiles` command groups manage named export
// configurations and upload destinations.
package main
