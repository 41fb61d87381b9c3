package schedule

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestFetchFiltersDisabledAndMalformedRows(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"schedules": [
				{"id": 1, "call_time": "07:00", "is_enabled": true, "created_at": "2025-07-01T00:00:00Z"},
				{"id": 2, "call_time": "12:30", "is_enabled": false, "created_at": "2025-07-01T00:00:00Z"},
				{"id": 3, "call_time": "9pm", "is_enabled": true, "created_at": "2025-07-01T00:00:00Z"},
				{"id": 4, "call_time": "19:00", "is_enabled": true, "created_at": "2025-07-01T00:00:00Z"}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "token-abc", zap.NewNop())
	schedule, err := client.Fetch(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if gotPath != "/api/v1/schedule/user-1" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotAuth != "Bearer token-abc" {
		t.Errorf("authorization header = %q", gotAuth)
	}
	if schedule.UserID != "user-1" {
		t.Errorf("schedule user = %q", schedule.UserID)
	}
	if len(schedule.CallTimes) != 2 {
		t.Fatalf("expected 2 enabled call times, got %d", len(schedule.CallTimes))
	}
	if schedule.CallTimes[0] != "07:00" || schedule.CallTimes[1] != "19:00" {
		t.Errorf("call times = %v", schedule.CallTimes)
	}
}

func TestFetchFailsOnNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", zap.NewNop())
	if _, err := client.Fetch(context.Background(), "user-1"); err == nil {
		t.Fatal("expected an error for a 403 response")
	}
}

func TestFetchEmptyScheduleIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"schedules": []}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", zap.NewNop())
	schedule, err := client.Fetch(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(schedule.CallTimes) != 0 {
		t.Errorf("expected no call times, got %v", schedule.CallTimes)
	}
}
