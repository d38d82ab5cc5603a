package fhir

import (
	"net/url"
	"testing"
)

func sampleResource(id string) map[string]interface{} {
	return map[string]interface{}{
		"resourceType": "Practitioner",
		"id":           id,
	}
}

func TestNewSearchBundle_LinksAndEntries(t *testing.T) {
	resources := []interface{}{sampleResource("a"), sampleResource("b")}
	b := NewSearchBundle(resources, SearchBundleParams{
		BaseURL: "/fhir/Practitioner",
		Count:   2,
		Offset:  2,
		Total:   10,
	})

	if b.Type != "searchset" || *b.Total != 10 {
		t.Fatalf("bundle = %+v", b)
	}
	if len(b.Entry) != 2 {
		t.Fatalf("entries = %d", len(b.Entry))
	}
	if b.Entry[0].FullURL != "Practitioner/a" {
		t.Errorf("fullUrl = %q", b.Entry[0].FullURL)
	}
	if b.Entry[0].Search == nil || b.Entry[0].Search.Mode != "match" {
		t.Error("entries must carry search mode match")
	}

	rels := map[string]bool{}
	for _, l := range b.Link {
		rels[l.Relation] = true
	}
	for _, want := range []string{"self", "next", "previous"} {
		if !rels[want] {
			t.Errorf("missing %s link in %v", want, b.Link)
		}
	}
}

func TestNewSearchBundle_NextLinkAdvancesWindow(t *testing.T) {
	resources := []interface{}{sampleResource("a"), sampleResource("b")}
	b := NewSearchBundle(resources, SearchBundleParams{
		BaseURL:  "/fhir/Practitioner",
		QueryStr: "_count=2&_offset=0&address-city=Indianapolis",
		Count:    2,
		Offset:   0,
		Total:    5,
	})

	var next string
	for _, l := range b.Link {
		if l.Relation == "next" {
			next = l.URL
		}
	}
	if next == "" {
		t.Fatalf("missing next link in %v", b.Link)
	}

	u, err := url.Parse(next)
	if err != nil {
		t.Fatalf("next link is not a valid URL: %v", err)
	}
	q := u.Query()
	if got := q.Get("_offset"); got != "2" {
		t.Errorf("following the next link serves offset %s, want 2", got)
	}
	if got := q.Get("_count"); got != "2" {
		t.Errorf("_count = %s", got)
	}
	if len(q["_offset"]) != 1 || len(q["_count"]) != 1 {
		t.Errorf("page window must appear exactly once, got %v", q)
	}
	if got := q.Get("address-city"); got != "Indianapolis" {
		t.Errorf("filter params must survive the link rebuild, got %q", got)
	}
}

func TestNewSearchBundle_EmptyResultIsValid(t *testing.T) {
	b := NewSearchBundle(nil, SearchBundleParams{BaseURL: "/fhir/Practitioner", Count: 20, Total: 0})
	if *b.Total != 0 || len(b.Entry) != 0 {
		t.Errorf("bundle = %+v", b)
	}
}

func TestNewHistoryBundle_Empty(t *testing.T) {
	b := NewHistoryBundle(nil)
	if b.Type != "history" || *b.Total != 0 {
		t.Errorf("empty history must render as a zero-entry bundle, got %+v", b)
	}
}

func TestNewHistoryBundle_Entries(t *testing.T) {
	b := NewHistoryBundle([]interface{}{
		map[string]interface{}{"resourceType": "Provenance", "id": "p1"},
	})
	if len(b.Entry) != 1 || b.Entry[0].FullURL != "Provenance/p1" {
		t.Errorf("bundle = %+v", b)
	}
}
