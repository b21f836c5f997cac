// ABOUTME: Tests for the Teable API client
// ABOUTME: Covers auth headers, request shapes, and upstream error propagation

package teable

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	for _, key := range []string{"", "   "} {
		if _, err := NewClient(key, ""); !errors.Is(err, ErrNoAPIKey) {
			t.Errorf("Expected ErrNoAPIKey for %q, got %v", key, err)
		}
	}
}

func TestClient_AuthHeader(t *testing.T) {
	var gotAuth, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		json.NewEncoder(w).Encode([]Space{})
	}))
	defer srv.Close()

	c, err := NewClient("  test-key  ", srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if _, err := c.ListSpaces(context.Background()); err != nil {
		t.Fatalf("ListSpaces failed: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("Expected trimmed bearer token, got %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("Expected JSON content type, got %q", gotContentType)
	}
}

func TestClient_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"no access"}`))
	}))
	defer srv.Close()

	c, _ := NewClient("key", srv.URL)

	_, err := c.ListTables(context.Background(), "bse1")
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("Expected UpstreamError, got %v", err)
	}
	if upstream.StatusCode != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", upstream.StatusCode)
	}
	if upstream.Body != `{"message":"no access"}` {
		t.Errorf("Expected raw body preserved, got %q", upstream.Body)
	}
}

func TestClient_ListRecords_QueryParams(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(RecordList{Records: []Record{{ID: "rec1"}}})
	}))
	defer srv.Close()

	c, _ := NewClient("key", srv.URL)

	list, err := c.ListRecords(context.Background(), "tbl1", ListRecordsOptions{
		ViewID:     "viw1",
		MaxRecords: 25,
	})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(list.Records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(list.Records))
	}

	if got := gotQuery["viewId"]; len(got) != 1 || got[0] != "viw1" {
		t.Errorf("Expected viewId=viw1, got %v", got)
	}
	if got := gotQuery["maxRecords"]; len(got) != 1 || got[0] != "25" {
		t.Errorf("Expected maxRecords=25, got %v", got)
	}
}

func TestClient_CreateRecord(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(Record{ID: "rec1", Fields: map[string]any{"Name": "x"}})
	}))
	defer srv.Close()

	c, _ := NewClient("key", srv.URL)

	record, err := c.CreateRecord(context.Background(), "tbl1", map[string]any{"Name": "x"})
	if err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}
	if record.ID != "rec1" {
		t.Errorf("Expected rec1, got %s", record.ID)
	}

	fields, ok := gotBody["fields"].(map[string]any)
	if !ok || fields["Name"] != "x" {
		t.Errorf("Expected fields payload, got %v", gotBody)
	}
}

func TestClient_DeleteRecords_QueryEncoding(t *testing.T) {
	var gotIDs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("Expected DELETE, got %s", r.Method)
		}
		gotIDs = r.URL.Query()["recordIds"]
	}))
	defer srv.Close()

	c, _ := NewClient("key", srv.URL)

	if err := c.DeleteRecords(context.Background(), "tbl1", []string{"rec1", "rec2"}); err != nil {
		t.Fatalf("DeleteRecords failed: %v", err)
	}
	if len(gotIDs) != 2 || gotIDs[0] != "rec1" || gotIDs[1] != "rec2" {
		t.Errorf("Expected both record ids in query, got %v", gotIDs)
	}
}

func TestClient_EmptyResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := NewClient("key", srv.URL)

	if err := c.DeleteTable(context.Background(), "bse1", "tbl1"); err != nil {
		t.Errorf("Expected empty body to succeed, got %v", err)
	}
}
