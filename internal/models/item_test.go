package models

import "testing"

func TestParseStatus(t *testing.T) {
	testCases := []struct {
		input string
		want  Status
		ok    bool
	}{
		{"RECYCLE", StatusRecycle, true},
		{"resell", StatusResell, true},
		{" Donate ", StatusDonate, true},
		{"landfill", "", false},
		{"", "", false},
	}

	for _, tc := range testCases {
		got, ok := ParseStatus(tc.input)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseStatus(%q) = %q, %v, want %q, %v", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestBatchLetter(t *testing.T) {
	want := map[Status]string{
		StatusRecycle: "C",
		StatusResell:  "S",
		StatusDonate:  "D",
		Status("x"):   "",
	}
	for status, letter := range want {
		if got := status.BatchLetter(); got != letter {
			t.Errorf("%q.BatchLetter() = %q, want %q", status, got, letter)
		}
	}
}

func TestItemDocumentRoundTrip(t *testing.T) {
	item := &ClothingItem{
		ID:          "TAG00042",
		Composition: Composition{"Cotton": 60, "Polyester": 40},
		Score:       72,
		Status:      StatusResell,
		Date:        "2024-03-02T10:00:00Z",
		BatchNo:     "S2",
		Brand:       "Acme",
		Fallback:    true,
	}

	doc := item.ToDocument()
	if _, ok := doc["image_url"]; ok {
		t.Error("empty image_url should not be stored")
	}

	got := ItemFromDocument(doc)
	if got.ID != item.ID || got.Status != item.Status || got.Date != item.Date || got.BatchNo != item.BatchNo {
		t.Errorf("ItemFromDocument = %+v, want fields of %+v", got, item)
	}
	if got.Score != 72 {
		t.Errorf("score = %d, want 72", got.Score)
	}
	if got.Composition["Cotton"] != 60 || got.Composition["Polyester"] != 40 {
		t.Errorf("composition = %v", got.Composition)
	}
	if !got.Fallback {
		t.Error("fallback flag lost")
	}
}

func TestItemFromDocumentDecodedJSON(t *testing.T) {
	doc := Document{"name": "jacket", "score": float64(12), "status": "Donate"}
	got := ItemFromDocument(doc)
	if got.Score != 12 || got.Status != StatusDonate || got.Date != "" {
		t.Errorf("ItemFromDocument = %+v", got)
	}
}
