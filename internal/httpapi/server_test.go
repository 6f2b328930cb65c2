package httpapi_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/service"
	"github.com/fbolanos/AutoHeadFixFB/internal/httpapi"
	"github.com/fbolanos/AutoHeadFixFB/internal/observability"
)

type fixedStatus service.Status

func (f fixedStatus) Status() service.Status { return service.Status(f) }

// newTestServer wires the API over a registry holding two animals and
// returns an httptest.Server whose URL can be hit with a plain http.Client.
func newTestServer(t *testing.T, st service.Status) *httptest.Server {
	t.Helper()

	reg := service.NewRegistry()
	a, _ := reg.Resolve(2016090190)
	reg.AddEntry(a)
	reg.AddEntry(a)
	reg.AddHeadFix(a)
	reg.AddHeadFixRewards(a, 6)
	b, _ := reg.Resolve(42)
	reg.GrantEntranceReward(b, 100)

	promReg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promReg)
	metrics.Entry()

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:    zerolog.Nop(),
		Addr:      ":0",
		SessionID: "01JRZ8ZQ4M8Y2C8E5X0W9V3T7K",
		CageID:    "cage1",
		Animals:   reg,
		Session:   fixedStatus(st),
		Gatherer:  promReg,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url, accept string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// ── Stats ────────────────────────────────────────────────────────────────────

func TestStats_JSON(t *testing.T) {
	ts := newTestServer(t, service.Status{})

	resp := get(t, ts.URL+"/v1/stats", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}

	var body struct {
		SessionID string `json:"session_id"`
		CageID    string `json:"cage_id"`
		Animals   []struct {
			Tag              uint64 `json:"tag"`
			Entries          int    `json:"entries"`
			EntranceRewards  int    `json:"entrance_rewards"`
			HeadFixes        int    `json:"headfixes"`
			HeadFixedRewards int    `json:"headfixed_rewards"`
		} `json:"animals"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if body.CageID != "cage1" || body.SessionID == "" {
		t.Errorf("unexpected identity: %+v", body)
	}
	if len(body.Animals) != 2 {
		t.Fatalf("expected 2 animals, got %d", len(body.Animals))
	}
	first := body.Animals[0]
	if first.Tag != 2016090190 || first.Entries != 2 || first.HeadFixes != 1 || first.HeadFixedRewards != 6 {
		t.Errorf("unexpected first animal: %+v", first)
	}
	if body.Animals[1].Tag != 42 || body.Animals[1].EntranceRewards != 1 {
		t.Errorf("unexpected second animal: %+v", body.Animals[1])
	}
}

func TestStats_Protobuf(t *testing.T) {
	ts := newTestServer(t, service.Status{})

	resp := get(t, ts.URL+"/v1/stats", "application/x-protobuf;q=0.9, application/json;q=0.5")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-protobuf" {
		t.Fatalf("expected protobuf content type, got %q", ct)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var list structpb.ListValue
	if err := proto.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	rows := list.AsSlice()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	first, ok := rows[0].(map[string]any)
	if !ok {
		t.Fatalf("expected struct row, got %T", rows[0])
	}
	if first["tag"] != "2016090190" {
		t.Errorf("expected tag 2016090190, got %v", first["tag"])
	}
	if first["headfixed_rewards"] != float64(6) {
		t.Errorf("expected 6 head-fixed rewards, got %v", first["headfixed_rewards"])
	}
}

func TestStats_WrongMethod_405(t *testing.T) {
	ts := newTestServer(t, service.Status{})

	resp, err := http.Post(ts.URL+"/v1/stats", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

// ── Session ──────────────────────────────────────────────────────────────────

func TestSession_CurrentAnimal(t *testing.T) {
	since := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	ts := newTestServer(t, service.Status{
		State:      service.StateHeadFixed,
		Tag:        2016090190,
		HasAnimal:  true,
		Since:      since,
		Recording:  "movies/cage1/M2016090190_1775030400.000000.raw",
		TrialCount: 3,
	})

	resp := get(t, ts.URL+"/v1/session", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["state"] != "head-fixed" {
		t.Errorf("expected state=head-fixed, got %v", body["state"])
	}
	if body["tag"] != "2016090190" {
		t.Errorf("expected tag, got %v", body["tag"])
	}
	if body["trials"] != float64(3) {
		t.Errorf("expected trials=3, got %v", body["trials"])
	}
}

func TestSession_NoAnimalOmitsTag(t *testing.T) {
	ts := newTestServer(t, service.Status{State: service.StateAwaitingTag})

	resp := get(t, ts.URL+"/v1/session", "")
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body["tag"]; ok {
		t.Errorf("expected no tag while awaiting, got %v", body["tag"])
	}
	if body["state"] != "awaiting-tag" {
		t.Errorf("expected state=awaiting-tag, got %v", body["state"])
	}
}

// ── Metrics ──────────────────────────────────────────────────────────────────

func TestMetrics_Exposed(t *testing.T) {
	ts := newTestServer(t, service.Status{})

	resp := get(t, ts.URL+"/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "headfix_session_entries_total 1") {
		t.Errorf("entries counter missing from exposition:\n%s", data)
	}
}
