package pipeline_test

import (
	"testing"

	"markerflow/internal/pipeline"
)

func TestReportTexts(t *testing.T) {
	tests := []struct {
		name    string
		report  pipeline.Report
		summary string
		detail  string
	}{
		{
			name:    "success",
			report:  pipeline.Report{Files: []string{"/p/a.fcpxml", "/p/b.fcpxml"}},
			summary: "Extracted 2 projects",
		},
		{
			name: "single file shows reason",
			report: pipeline.Report{
				Files:    []string{"/p/a.fcpxml"},
				Failures: []pipeline.Failure{{File: "/p/a.fcpxml", Kind: pipeline.KindExtract, Message: "unreadable project"}},
			},
			summary: "Extraction failed: unreadable project",
			detail:  "a.fcpxml: unreadable project",
		},
		{
			name: "multi file points at details",
			report: pipeline.Report{
				Files: []string{"/p/a.fcpxml", "/p/b.fcpxml"},
				Failures: []pipeline.Failure{
					{File: "/p/a.fcpxml", Kind: pipeline.KindExtract, Message: "unreadable project"},
					{File: "/p/b.fcpxml", Kind: pipeline.KindUpload, Message: "ignored", Cancelled: true},
				},
			},
			summary: "2 files failed, see details",
			detail:  "a.fcpxml: unreadable project\nb.fcpxml: cancelled by user",
		},
		{
			name: "empty message falls back to kind",
			report: pipeline.Report{
				Files:    []string{"/p/a.fcpxml"},
				Failures: []pipeline.Failure{{File: "/p/a.fcpxml", Kind: pipeline.KindUpload}},
			},
			summary: "Upload failed: upload failed",
			detail:  "a.fcpxml: upload failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.report.Summary(); got != tt.summary {
				t.Errorf("Summary() = %q, want %q", got, tt.summary)
			}
			if got := tt.report.Detail(); got != tt.detail {
				t.Errorf("Detail() = %q, want %q", got, tt.detail)
			}
		})
	}
}
