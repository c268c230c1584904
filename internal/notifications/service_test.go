package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"markerflow/internal/config"
	"markerflow/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventExtractionCompleted, notifications.Payload{"files": 1}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "extraction completed",
			event:         notifications.EventExtractionCompleted,
			payload:       notifications.Payload{"files": 1, "folder": "/Markers/Edit"},
			expectTitle:   "markerflow - Extraction Complete",
			expectMessage: "✅ Extracted 1 project\nOutput: /Markers/Edit",
			expectTags:    "markerflow,extract,completed",
		},
		{
			name:           "extraction failed",
			event:          notifications.EventExtractionFailed,
			payload:        notifications.Payload{"failed": 1, "total": 3, "detail": "B.fcpxml: failed to extract"},
			expectTitle:    "markerflow - Extraction Failed",
			expectMessage:  "❌ 1 of 3 projects failed\nB.fcpxml: failed to extract",
			expectTags:     "markerflow,extract,failed",
			expectPriority: "high",
		},
		{
			name:          "queue uploaded with errors",
			event:         notifications.EventQueueUploaded,
			payload:       notifications.Payload{"uploaded": 4, "failed": 1},
			expectTitle:   "markerflow - Queue Uploaded (with errors)",
			expectMessage: "📤 Queue upload finished: 4 succeeded, 1 failed",
			expectTags:    "markerflow,queue,upload",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "markerflow - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "markerflow,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonoursToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Completion = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	suppressed := []struct {
		event   notifications.Event
		payload notifications.Payload
	}{
		{notifications.EventExtractionCompleted, notifications.Payload{"files": 2}},
		{notifications.EventExtractionFailed, notifications.Payload{"failed": 1, "total": 2}},
		{notifications.EventQueueUploaded, notifications.Payload{"uploaded": 2}},
		{notifications.EventQueueUploaded, notifications.Payload{"uploaded": 1, "failed": 1}},
		{notifications.Event("unknown"), nil},
	}
	for _, s := range suppressed {
		if err := svc.Publish(context.Background(), s.event, s.payload); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", s.event, err)
		}
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic reserved", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	if err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
