// Package openfda looks up drug labels and adverse event reports from the
// openFDA API. Responses are cached in memory.
package openfda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/postvisit/carecore/tools"
)

// Defaults.
const (
	DefaultBaseURL   = "https://api.fda.gov/drug"
	DefaultTimeout   = 5 * time.Second
	DefaultCacheTTL  = 24 * time.Hour
	DefaultCacheSize = 512
)

// ErrStatus is returned for non-success responses other than 404.
var ErrStatus = errors.New("openfda: unexpected status")

// Client queries openFDA. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	events *expirable.LRU[string, tools.AdverseEvents]
	labels *expirable.LRU[string, *tools.Label]
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client whose responses are cached for ttl.
// A ttl of zero uses DefaultCacheTTL.
func NewClient(ttl time.Duration, opts ...Option) *Client {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  slog.Default(),
		events:  expirable.NewLRU[string, tools.AdverseEvents](DefaultCacheSize, nil, ttl),
		labels:  expirable.NewLRU[string, *tools.Label](DefaultCacheSize, nil, ttl),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ tools.DrugLookup = (*Client)(nil)

func genericNameQuery(field, drug string) string {
	return fmt.Sprintf(`%s:"%s"`, field, strings.ReplaceAll(drug, `"`, ""))
}

// AdverseEvents implements tools.DrugLookup.
func (c *Client) AdverseEvents(ctx context.Context, drug string, limit int) (tools.AdverseEvents, error) {
	search := genericNameQuery("patient.drug.openfda.generic_name", drug)
	return c.countReactions(ctx, "events:"+strings.ToLower(drug)+":"+strconv.Itoa(limit), search, limit)
}

// CoReportedAdverseEvents implements tools.DrugLookup.
func (c *Client) CoReportedAdverseEvents(ctx context.Context, drug1, drug2 string, limit int) (tools.AdverseEvents, error) {
	search := genericNameQuery("patient.drug.openfda.generic_name", drug1) +
		" AND " + genericNameQuery("patient.drug.openfda.generic_name", drug2)
	key := "co:" + strings.ToLower(drug1) + ":" + strings.ToLower(drug2) + ":" + strconv.Itoa(limit)
	return c.countReactions(ctx, key, search, limit)
}

type countResponse struct {
	Results []struct {
		Term  string `json:"term"`
		Count int    `json:"count"`
	} `json:"results"`
}

func (c *Client) countReactions(ctx context.Context, key, search string, limit int) (tools.AdverseEvents, error) {
	if v, ok := c.events.Get(key); ok {
		return v, nil
	}

	q := url.Values{}
	q.Set("search", search)
	q.Set("count", "patient.reaction.reactionmeddrapt.exact")
	q.Set("limit", strconv.Itoa(limit))

	var resp countResponse
	found, err := c.get(ctx, "/event.json", q, &resp)
	if err != nil {
		return tools.AdverseEvents{}, err
	}

	out := tools.AdverseEvents{Events: []tools.AdverseEvent{}}
	if found {
		for _, r := range resp.Results {
			out.Events = append(out.Events, tools.AdverseEvent{Reaction: r.Term, Count: r.Count})
			out.Total += r.Count
		}
	}
	c.events.Add(key, out)
	return out, nil
}

type labelResponse struct {
	Results []map[string]json.RawMessage `json:"results"`
}

// Label implements tools.DrugLookup.
func (c *Client) Label(ctx context.Context, drug string) (*tools.Label, error) {
	key := strings.ToLower(drug)
	if v, ok := c.labels.Get(key); ok {
		return v, nil
	}

	q := url.Values{}
	q.Set("search", genericNameQuery("openfda.generic_name", drug))
	q.Set("limit", "1")

	var resp labelResponse
	found, err := c.get(ctx, "/label.json", q, &resp)
	if err != nil {
		return nil, err
	}

	var label *tools.Label
	if found && len(resp.Results) > 0 {
		label = parseLabel(resp.Results[0])
	}
	c.labels.Add(key, label)
	return label, nil
}

// parseLabel takes the first entry of each label section. openFDA returns
// every section as an array of strings.
func parseLabel(raw map[string]json.RawMessage) *tools.Label {
	first := func(data json.RawMessage) string {
		var vals []string
		if err := json.Unmarshal(data, &vals); err != nil || len(vals) == 0 {
			return ""
		}
		return vals[0]
	}
	section := func(name string) string { return first(raw[name]) }

	var meta map[string]json.RawMessage
	if data, ok := raw["openfda"]; ok {
		_ = json.Unmarshal(data, &meta)
	}

	return &tools.Label{
		GenericName:             first(meta["generic_name"]),
		BrandName:               first(meta["brand_name"]),
		Manufacturer:            first(meta["manufacturer_name"]),
		Warnings:                section("warnings"),
		WarningsAndCautions:     section("warnings_and_cautions"),
		BoxedWarning:            section("boxed_warning"),
		AdverseReactions:        section("adverse_reactions"),
		DrugInteractions:        section("drug_interactions"),
		IndicationsAndUsage:     section("indications_and_usage"),
		DosageAndAdministration: section("dosage_and_administration"),
		InformationForPatients:  section("information_for_patients"),
		Pregnancy:               section("pregnancy"),
		NursingMothers:          section("nursing_mothers"),
	}
}

// get decodes a JSON response into v. openFDA answers 404 when a search
// has no matches; that is reported as found == false.
func (c *Client) get(ctx context.Context, path string, q url.Values, v any) (found bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("openfda request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("openfda %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("openfda request failed",
			slog.String("path", path), slog.Int("status", resp.StatusCode))
		return false, fmt.Errorf("%w: %s %d: %s", ErrStatus, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return false, fmt.Errorf("openfda %s: decode: %w", path, err)
	}
	return true, nil
}
