package remote

import (
	"testing"

	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/models"
)

func TestSanitizeForWrite(t *testing.T) {
	doc := Document{
		"id":          "rt-1",
		"residualRaw": nil,
		"samples": []interface{}{
			map[string]interface{}{
				"id":       "s1",
				"rawUnits": nil,
			},
		},
		"nested": map[string]interface{}{
			"inner": nil,
		},
	}

	got := SanitizeForWrite(doc)

	if got["residualRaw"] != NullMarker {
		t.Errorf("residualRaw = %v, want null marker", got["residualRaw"])
	}

	samples := got["samples"].([]interface{})
	sample := samples[0].(Document)
	if sample["rawUnits"] != NullMarker {
		t.Errorf("sample rawUnits = %v, want null marker", sample["rawUnits"])
	}

	nested := got["nested"].(Document)
	if nested["inner"] != NullMarker {
		t.Errorf("nested inner = %v, want null marker", nested["inner"])
	}

	// original untouched
	if doc["residualRaw"] != nil {
		t.Error("SanitizeForWrite mutated its input")
	}
}

func TestRestoreAbsent(t *testing.T) {
	doc := Document{
		"id":          "rt-1",
		"residualRaw": NullMarker,
		"lotNumber":   "0004690-25",
		"nested": map[string]interface{}{
			"inner": NullMarker,
			"kept":  "value",
		},
	}

	got := RestoreAbsent(doc)

	if _, present := got["residualRaw"]; present {
		t.Error("residualRaw still present after restore, want absent")
	}
	if got["lotNumber"] != "0004690-25" {
		t.Errorf("lotNumber = %v, want passthrough", got["lotNumber"])
	}

	nested := got["nested"].(Document)
	if _, present := nested["inner"]; present {
		t.Error("nested inner still present after restore")
	}
	if nested["kept"] != "value" {
		t.Errorf("nested kept = %v, want passthrough", nested["kept"])
	}
}

func TestRestoreAbsentArrayKeepsSlots(t *testing.T) {
	doc := Document{
		"values": []interface{}{"a", NullMarker, "c"},
	}

	got := RestoreAbsent(doc)

	values := got["values"].([]interface{})
	if len(values) != 3 {
		t.Fatalf("array length = %d, want slots preserved (3)", len(values))
	}
	if values[1] != nil {
		t.Errorf("values[1] = %v, want nil slot", values[1])
	}
}

// TestNullRoundTrip exercises the full contract: an unset field survives
// write sanitization and read restoration as "absent", never as zero.
func TestNullRoundTrip(t *testing.T) {
	cooked := 3.5
	rec := &models.Record{
		ID:             "rt-1",
		LotNumber:      "0004690-25",
		Date:           "2025-01-15",
		ResidualCooked: &cooked,
		// ResidualRaw deliberately never entered
	}

	doc, err := RecordToDocument(rec)
	if err != nil {
		t.Fatalf("RecordToDocument() error: %v", err)
	}
	if v, present := doc["residualRaw"]; !present || v != nil {
		t.Fatalf("residualRaw in document = %v (present=%v), want explicit null", v, present)
	}

	wire := SanitizeForWrite(doc)
	if wire["residualRaw"] != NullMarker {
		t.Fatalf("residualRaw on wire = %v, want null marker", wire["residualRaw"])
	}

	restored := RestoreAbsent(wire)
	if _, present := restored["residualRaw"]; present {
		t.Fatal("residualRaw present after restore, want absent")
	}

	back, err := DocumentToRecord(restored)
	if err != nil {
		t.Fatalf("DocumentToRecord() error: %v", err)
	}
	if back.ResidualRaw != nil {
		t.Errorf("ResidualRaw = %v after round trip, want nil", *back.ResidualRaw)
	}
	if back.ResidualCooked == nil || *back.ResidualCooked != 3.5 {
		t.Errorf("ResidualCooked = %v after round trip, want 3.5", back.ResidualCooked)
	}
}

func TestDocumentToRecordSampleCounts(t *testing.T) {
	doc := Document{
		"id":        "rt-1",
		"lotNumber": "0004690-25",
		"date":      "2025-01-15",
		"samples": []interface{}{
			map[string]interface{}{
				"id":          "s1",
				"timeSlot":    float64(0),
				"rawUnits":    float64(0),
				"cookedUnits": nil,
			},
		},
	}

	rec, err := DocumentToRecord(doc)
	if err != nil {
		t.Fatalf("DocumentToRecord() error: %v", err)
	}
	if len(rec.Samples) != 1 {
		t.Fatalf("Samples length = %d, want 1", len(rec.Samples))
	}

	s := rec.Samples[0]
	if s.RawUnits == nil || *s.RawUnits != 0 {
		t.Errorf("RawUnits = %v, want entered zero", s.RawUnits)
	}
	if s.CookedUnits != nil {
		t.Errorf("CookedUnits = %v, want nil (not entered)", s.CookedUnits)
	}
}
