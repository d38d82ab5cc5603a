package fhir

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// Bundle is the paginated result envelope returned by search and history.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
}

type BundleSearch struct {
	Mode string `json:"mode,omitempty"`
}

// SearchBundleParams holds pagination and link information for a search bundle.
type SearchBundleParams struct {
	BaseURL  string
	QueryStr string
	Count    int
	Offset   int
	Total    int
}

// NewSearchBundle creates a searchset Bundle with self/next/previous links.
// A bundle is built fresh per call so the total always reflects the store
// state the query ran against. An empty resource list is a valid result.
func NewSearchBundle(resources []interface{}, params SearchBundleParams) *Bundle {
	now := time.Now().UTC()
	entries := make([]BundleEntry, len(resources))
	for i, r := range resources {
		raw, _ := json.Marshal(r)
		entries[i] = BundleEntry{
			FullURL:  extractFullURL(r),
			Resource: raw,
			Search:   &BundleSearch{Mode: "match"},
		}
	}

	return &Bundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        &params.Total,
		Timestamp:    &now,
		Link:         paginationLinks(params),
		Entry:        entries,
	}
}

// NewHistoryBundle wraps reconstructed provenance resources in a history
// bundle. History is never paged further: the full sequence ships per call,
// and an empty sequence renders as a zero-entry bundle, not an error.
func NewHistoryBundle(resources []interface{}) *Bundle {
	now := time.Now().UTC()
	total := len(resources)
	entries := make([]BundleEntry, len(resources))
	for i, r := range resources {
		raw, _ := json.Marshal(r)
		entries[i] = BundleEntry{
			FullURL:  extractFullURL(r),
			Resource: raw,
		}
	}

	return &Bundle{
		ResourceType: "Bundle",
		Type:         "history",
		Total:        &total,
		Timestamp:    &now,
		Entry:        entries,
	}
}

// extractFullURL builds "ResourceType/id" from a resource's own fields.
func extractFullURL(r interface{}) string {
	m, ok := r.(map[string]interface{})
	if !ok {
		data, err := json.Marshal(r)
		if err != nil {
			return ""
		}
		if err := json.Unmarshal(data, &m); err != nil {
			return ""
		}
	}
	rt, _ := m["resourceType"].(string)
	id, _ := m["id"].(string)
	if rt != "" && id != "" {
		return rt + "/" + id
	}
	return ""
}

// paginationLinks creates self, next, and previous links for searchset bundles.
func paginationLinks(params SearchBundleParams) []BundleLink {
	links := []BundleLink{
		{
			Relation: "self",
			URL:      pageURL(params, params.Offset),
		},
	}

	if next := params.Offset + params.Count; next < params.Total {
		links = append(links, BundleLink{Relation: "next", URL: pageURL(params, next)})
	}

	if params.Offset > 0 {
		prev := params.Offset - params.Count
		if prev < 0 {
			prev = 0
		}
		links = append(links, BundleLink{Relation: "previous", URL: pageURL(params, prev)})
	}

	return links
}

// pageURL rebuilds the query string with the link's own page window. The
// client's _count/_offset are dropped first: a repeated key would be read at
// its first value, leaving the cursor stuck on the original page.
func pageURL(params SearchBundleParams, offset int) string {
	values, err := url.ParseQuery(params.QueryStr)
	if err != nil {
		values = url.Values{}
	}
	values.Del("_count")
	values.Del("_offset")

	qs := values.Encode()
	if qs != "" {
		qs += "&"
	}
	return fmt.Sprintf("%s?%s_count=%d&_offset=%d", params.BaseURL, qs, params.Count, offset)
}
