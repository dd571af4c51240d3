package metrics

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestNew_BoothDimension(t *testing.T) {
	initOnce.Do(func() {})
	boothID = "kiosk-7"
	defer func() { boothID = "" }()

	r := New(Namespace)
	if r.namespace != Namespace {
		t.Errorf("expected namespace %s, got %s", Namespace, r.namespace)
	}
	if r.dimensions["BoothId"] != "kiosk-7" {
		t.Errorf("expected BoothId dimension kiosk-7, got %s", r.dimensions["BoothId"])
	}
}

func TestRecorder_FlushOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	initOnce.Do(func() {})
	boothID = ""

	rec := New(Namespace)
	rec.Dimension("Operation", "stylize")
	rec.Metric("GenerationLatencyMs", 1234.5, UnitMilliseconds)
	rec.Metric("GenerationCalls", 1, UnitCount)
	rec.Property("sessionId", "booth-abc")
	rec.Flush()

	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("failed to parse EMF output as JSON: %v\nOutput: %s", err, buf.String())
	}

	awsMap, ok := doc["_aws"].(map[string]interface{})
	if !ok {
		t.Fatal("missing _aws directive in EMF output")
	}
	if _, ok := awsMap["Timestamp"]; !ok {
		t.Error("missing Timestamp in _aws directive")
	}
	cwArr, ok := awsMap["CloudWatchMetrics"].([]interface{})
	if !ok || len(cwArr) == 0 {
		t.Fatal("CloudWatchMetrics should be a non-empty array")
	}
	cw := cwArr[0].(map[string]interface{})
	if cw["Namespace"] != Namespace {
		t.Errorf("expected namespace %s, got %v", Namespace, cw["Namespace"])
	}

	if doc["Operation"] != "stylize" {
		t.Errorf("expected Operation=stylize, got %v", doc["Operation"])
	}
	if doc["GenerationLatencyMs"] != 1234.5 {
		t.Errorf("expected GenerationLatencyMs=1234.5, got %v", doc["GenerationLatencyMs"])
	}
	if doc["GenerationCalls"] != float64(1) {
		t.Errorf("expected GenerationCalls=1, got %v", doc["GenerationCalls"])
	}
	if doc["sessionId"] != "booth-abc" {
		t.Errorf("expected sessionId=booth-abc, got %v", doc["sessionId"])
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	New("Test").Flush()

	if buf.Len() != 0 {
		t.Errorf("expected no output for empty recorder, got: %s", buf.String())
	}
}

func TestRecorder_Chaining(t *testing.T) {
	boothID = ""
	start := time.Now().Add(-50 * time.Millisecond)
	rec := New("Test").
		Dimension("Op", "compose").
		Metric("Duration", 100, UnitMilliseconds).
		Count("Calls").
		Since("Elapsed", start).
		Property("id", "xyz")

	if rec.dimensions["Op"] != "compose" {
		t.Error("chaining Dimension failed")
	}
	if rec.values["Duration"] != float64(100) {
		t.Error("chaining Metric failed")
	}
	if rec.values["Calls"] != float64(1) {
		t.Error("chaining Count failed")
	}
	if v, ok := rec.values["Elapsed"].(float64); !ok || v < 50 {
		t.Errorf("expected Elapsed >= 50ms, got %v", rec.values["Elapsed"])
	}
	if rec.metrics["Elapsed"].Unit != UnitMilliseconds {
		t.Errorf("expected Elapsed unit Milliseconds, got %s", rec.metrics["Elapsed"].Unit)
	}
	if rec.properties["id"] != "xyz" {
		t.Error("chaining Property failed")
	}
}
