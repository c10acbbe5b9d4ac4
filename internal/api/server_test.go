// =============================================================================
// HTTP API TESTS
// =============================================================================
//
// WHAT WE'RE TESTING:
//   1. The register -> read -> config -> delete lifecycle over the wire
//   2. Error mapping: not-found -> 404, incompatible/ordering -> 409,
//      invalid schema -> 422
//   3. Query parameters: ?deleted=true, ?permanent=true, "latest"
//
// Tests run against the real sequencer and an in-memory partition log, so
// every request exercises the full write path including offset prediction.
//
// =============================================================================

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"goregistry/internal/registry"
	"goregistry/internal/seqlog"
)

const userSchema = `{
	"type": "object",
	"properties": {
		"id": {"type": "integer"},
		"name": {"type": "string"}
	},
	"required": ["id", "name"]
}`

const incompatibleSchema = `{
	"type": "object",
	"properties": {
		"id": {"type": "string"},
		"name": {"type": "string"}
	},
	"required": ["id", "name"]
}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	client := seqlog.NewLocalClient(t.TempDir())
	tp := seqlog.TopicPartition{Topic: "__registry", Partition: 0}
	if err := client.CreatePartition(tp); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })

	store := registry.NewStore(registry.CompatibilityBackward)
	cfg := registry.DefaultSequencerConfig()
	cfg.TopicPartition = tp
	seq := registry.NewSequencer(cfg, client, store, nil, nil)
	seq.Start()
	t.Cleanup(seq.Stop)

	server := NewServer(seq, store, nil, DefaultServerConfig(), nil)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body string, out interface{}) int {
	t.Helper()
	var req *http.Request
	var err error
	if body != "" {
		req, err = http.NewRequestWithContext(context.Background(), method, url, strings.NewReader(body))
	} else {
		req, err = http.NewRequestWithContext(context.Background(), method, url, nil)
	}
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func registerBody(schema string) string {
	b, _ := json.Marshal(map[string]string{"schema": schema, "schemaType": "JSON"})
	return string(b)
}

func TestAPI_RegisterAndRead(t *testing.T) {
	ts := newTestServer(t)

	var reg struct {
		ID int64 `json:"id"`
	}
	code := doJSON(t, "POST", ts.URL+"/subjects/users-value/versions", registerBody(userSchema), &reg)
	if code != http.StatusOK || reg.ID != 1 {
		t.Fatalf("register: code=%d, id=%d", code, reg.ID)
	}

	// Idempotent re-registration.
	code = doJSON(t, "POST", ts.URL+"/subjects/users-value/versions", registerBody(userSchema), &reg)
	if code != http.StatusOK || reg.ID != 1 {
		t.Errorf("re-register: code=%d, id=%d", code, reg.ID)
	}

	var subjects []string
	if code := doJSON(t, "GET", ts.URL+"/subjects", "", &subjects); code != http.StatusOK {
		t.Fatalf("list subjects: %d", code)
	}
	if len(subjects) != 1 || subjects[0] != "users-value" {
		t.Errorf("subjects: %v", subjects)
	}

	var sv struct {
		Subject string `json:"subject"`
		Version int    `json:"version"`
		ID      int64  `json:"id"`
		Schema  string `json:"schema"`
	}
	if code := doJSON(t, "GET", ts.URL+"/subjects/users-value/versions/latest", "", &sv); code != http.StatusOK {
		t.Fatalf("get latest: %d", code)
	}
	if sv.Version != 1 || sv.ID != 1 || sv.Schema != userSchema {
		t.Errorf("latest version: %+v", sv)
	}

	var byID struct {
		Schema string `json:"schema"`
	}
	if code := doJSON(t, "GET", fmt.Sprintf("%s/schemas/ids/%d", ts.URL, reg.ID), "", &byID); code != http.StatusOK {
		t.Fatalf("get by id: %d", code)
	}
	if byID.Schema != userSchema {
		t.Errorf("schema by id mismatch")
	}
}

func TestAPI_ErrorMapping(t *testing.T) {
	ts := newTestServer(t)

	if code := doJSON(t, "GET", ts.URL+"/subjects/ghost/versions", "", nil); code != http.StatusNotFound {
		t.Errorf("missing subject: got %d, want 404", code)
	}
	if code := doJSON(t, "GET", ts.URL+"/schemas/ids/42", "", nil); code != http.StatusNotFound {
		t.Errorf("missing schema id: got %d, want 404", code)
	}
	if code := doJSON(t, "POST", ts.URL+"/subjects/s/versions", registerBody("{bad"), nil); code != http.StatusUnprocessableEntity {
		t.Errorf("invalid schema: got %d, want 422", code)
	}
	if code := doJSON(t, "GET", ts.URL+"/subjects/s/versions/zero", "", nil); code != http.StatusBadRequest {
		t.Errorf("bad version: got %d, want 400", code)
	}

	// BACKWARD default rejects the type change with 409.
	doJSON(t, "POST", ts.URL+"/subjects/users-value/versions", registerBody(userSchema), nil)
	if code := doJSON(t, "POST", ts.URL+"/subjects/users-value/versions", registerBody(incompatibleSchema), nil); code != http.StatusConflict {
		t.Errorf("incompatible schema: got %d, want 409", code)
	}
}

func TestAPI_ConfigEndpoints(t *testing.T) {
	ts := newTestServer(t)

	var cfg struct {
		Compatibility string `json:"compatibility"`
	}
	if code := doJSON(t, "GET", ts.URL+"/config", "", &cfg); code != http.StatusOK || cfg.Compatibility != "BACKWARD" {
		t.Fatalf("global config: code=%d, %+v", code, cfg)
	}

	if code := doJSON(t, "PUT", ts.URL+"/config", `{"compatibility":"NONE"}`, &cfg); code != http.StatusOK {
		t.Fatalf("put global config: %d", code)
	}
	doJSON(t, "GET", ts.URL+"/config", "", &cfg)
	if cfg.Compatibility != "NONE" {
		t.Errorf("global config after put: %+v", cfg)
	}

	// Subject override; other subjects keep the global level.
	if code := doJSON(t, "PUT", ts.URL+"/config/users-value", `{"compatibility":"FULL"}`, nil); code != http.StatusOK {
		t.Fatalf("put subject config: %d", code)
	}
	doJSON(t, "GET", ts.URL+"/config/users-value", "", &cfg)
	if cfg.Compatibility != "FULL" {
		t.Errorf("subject config: %+v", cfg)
	}

	// No override: 404 by default, global fallback on request.
	if code := doJSON(t, "GET", ts.URL+"/config/other", "", nil); code != http.StatusNotFound {
		t.Errorf("subject without override: got %d, want 404", code)
	}
	doJSON(t, "GET", ts.URL+"/config/other?defaultToGlobal=true", "", &cfg)
	if cfg.Compatibility != "NONE" {
		t.Errorf("fallback config: %+v", cfg)
	}

	if code := doJSON(t, "PUT", ts.URL+"/config", `{"compatibility":"SIDEWAYS"}`, nil); code != http.StatusUnprocessableEntity {
		t.Errorf("bad level: got %d, want 422", code)
	}
}

func TestAPI_DeleteLifecycle(t *testing.T) {
	ts := newTestServer(t)

	doJSON(t, "PUT", ts.URL+"/config", `{"compatibility":"NONE"}`, nil)
	doJSON(t, "POST", ts.URL+"/subjects/users-value/versions", registerBody(userSchema), nil)
	doJSON(t, "POST", ts.URL+"/subjects/users-value/versions", registerBody(incompatibleSchema), nil)

	// Permanent before soft is a 409.
	if code := doJSON(t, "DELETE", ts.URL+"/subjects/users-value?permanent=true", "", nil); code != http.StatusConflict {
		t.Errorf("permanent before soft: got %d, want 409", code)
	}

	var versions []int
	if code := doJSON(t, "DELETE", ts.URL+"/subjects/users-value", "", &versions); code != http.StatusOK {
		t.Fatalf("soft delete: %d", code)
	}
	if len(versions) != 2 {
		t.Errorf("soft delete versions: %v", versions)
	}

	// Hidden from plain listings, visible with ?deleted=true.
	var subjects []string
	doJSON(t, "GET", ts.URL+"/subjects", "", &subjects)
	if len(subjects) != 0 {
		t.Errorf("soft-deleted subject listed: %v", subjects)
	}
	doJSON(t, "GET", ts.URL+"/subjects?deleted=true", "", &subjects)
	if len(subjects) != 1 {
		t.Errorf("deleted=true should list it: %v", subjects)
	}

	if code := doJSON(t, "DELETE", ts.URL+"/subjects/users-value?permanent=true", "", &versions); code != http.StatusOK {
		t.Fatalf("permanent delete: %d", code)
	}
	doJSON(t, "GET", ts.URL+"/subjects?deleted=true", "", &subjects)
	if len(subjects) != 0 {
		t.Errorf("permanently deleted subject still listed: %v", subjects)
	}
}

func TestAPI_HealthAndStats(t *testing.T) {
	ts := newTestServer(t)

	if code := doJSON(t, "GET", ts.URL+"/health", "", nil); code != http.StatusOK {
		t.Errorf("health: %d", code)
	}

	doJSON(t, "POST", ts.URL+"/subjects/users-value/versions", registerBody(userSchema), nil)

	var stats struct {
		Subjects     int   `json:"subjects"`
		Schemas      int   `json:"schemas"`
		LoadedOffset int64 `json:"loaded_offset"`
	}
	if code := doJSON(t, "GET", ts.URL+"/stats", "", &stats); code != http.StatusOK {
		t.Fatalf("stats: %d", code)
	}
	if stats.Subjects != 1 || stats.Schemas != 1 || stats.LoadedOffset != 0 {
		t.Errorf("stats: %+v", stats)
	}
}
