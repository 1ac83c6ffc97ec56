package shape

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

const (
	// DefaultOverpassURL is the public Overpass API interpreter endpoint.
	DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

	// DefaultFetchTimeout is the default HTTP request timeout for boundary
	// fetches. Overpass can be slow for large relations.
	DefaultFetchTimeout = 60 * time.Second

	// DefaultMaxRetries is the default number of retry attempts.
	DefaultMaxRetries = 3

	// defaultBaseBackoff is the base delay for exponential backoff.
	defaultBaseBackoff = 500 * time.Millisecond

	// maxResponseBytes limits the response body to 50 MB to prevent OOM.
	maxResponseBytes = 50 << 20
)

// FetchOption configures FetchBoundary behavior.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	endpoint    string
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
}

func defaultFetchConfig() fetchConfig {
	return fetchConfig{
		endpoint:    DefaultOverpassURL,
		timeout:     DefaultFetchTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
}

// WithEndpoint overrides the Overpass interpreter URL.
func WithEndpoint(u string) FetchOption {
	return func(c *fetchConfig) {
		c.endpoint = u
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.timeout = d
	}
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) FetchOption {
	return func(c *fetchConfig) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the base delay for exponential backoff between retries.
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.baseBackoff = d
	}
}

// WithHTTPClient overrides the default HTTP client (useful for testing).
func WithHTTPClient(client *http.Client) FetchOption {
	return func(c *fetchConfig) {
		c.client = client
	}
}

// overpassResponse mirrors the subset of the Overpass JSON output the
// boundary importer reads.
type overpassResponse struct {
	Elements []struct {
		Type    string `json:"type"`
		Members []struct {
			Type     string          `json:"type"`
			Geometry []overpassCoord `json:"geometry"`
		} `json:"members"`
		Geometry []overpassCoord `json:"geometry"`
	} `json:"elements"`
}

type overpassCoord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// FetchBoundary fetches the administrative boundary for a place name from an
// Overpass endpoint and assembles it into polygon geometry. Relation member
// ways are stitched into closed rings by endpoint matching; unclosed leftover
// chains are closed, and chains too short to form a ring are dropped.
// Transient HTTP failures retry with exponential backoff; a response that
// parses but contains no usable relation is not retried.
func FetchBoundary(ctx context.Context, placeName string, opts ...FetchOption) (orb.Geometry, error) {
	if strings.TrimSpace(placeName) == "" {
		return nil, fmt.Errorf("fetch boundary: place name is empty")
	}

	cfg := defaultFetchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	// Always make at least one attempt, or the loop below would return a
	// failure that wraps no underlying error.
	if cfg.maxRetries < 1 {
		cfg.maxRetries = 1
	}

	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}

	query := fmt.Sprintf(`[out:json][timeout:60];
relation["name"=%q]["boundary"="administrative"];
out geom;`, placeName)

	var lastErr error
	for attempt := range cfg.maxRetries {
		if attempt > 0 {
			backoff := cfg.baseBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch boundary: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		body, err := doOverpassQuery(ctx, client, cfg.endpoint, query)
		if err != nil {
			lastErr = err
			continue
		}

		geom, err := assembleBoundary(body)
		if err != nil {
			// A well-formed response with no usable geometry will not
			// improve on retry.
			return nil, fmt.Errorf("fetch boundary %q: %w", placeName, err)
		}
		return geom, nil
	}

	return nil, fmt.Errorf("fetch boundary %q: all %d attempts failed: %w", placeName, cfg.maxRetries, lastErr)
}

// doOverpassQuery performs a single interpreter request and returns the body.
func doOverpassQuery(ctx context.Context, client *http.Client, endpoint, query string) ([]byte, error) {
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP POST %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP POST %s: status %d", endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", endpoint, err)
	}
	return body, nil
}

// assembleBoundary turns an Overpass relation response into validated
// polygon geometry.
func assembleBoundary(body []byte) (orb.Geometry, error) {
	var resp overpassResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing Overpass response: %w", err)
	}

	var segments []orb.LineString
	for _, el := range resp.Elements {
		if el.Type != "relation" {
			continue
		}
		for _, m := range el.Members {
			if m.Type == "way" && len(m.Geometry) >= 2 {
				segments = append(segments, coordsToLine(m.Geometry))
			}
		}
		// Some responses carry geometry directly on the relation element.
		if len(el.Geometry) >= 2 {
			segments = append(segments, coordsToLine(el.Geometry))
		}
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no relation geometry in response", ErrInvalidGeometry)
	}

	rings := stitchRings(segments)
	if len(rings) == 0 {
		return nil, fmt.Errorf("%w: member ways form no usable ring", ErrInvalidGeometry)
	}

	var geom orb.Geometry
	if len(rings) == 1 {
		geom = orb.Polygon{rings[0]}
	} else {
		mp := make(orb.MultiPolygon, len(rings))
		for i, r := range rings {
			mp[i] = orb.Polygon{r}
		}
		geom = mp
	}

	if err := ValidateGeometry(geom); err != nil {
		return nil, err
	}
	return geom, nil
}

func coordsToLine(coords []overpassCoord) orb.LineString {
	ls := make(orb.LineString, len(coords))
	for i, c := range coords {
		ls[i] = orb.Point{c.Lon, c.Lat}
	}
	return ls
}

// stitchRings greedily chains way segments end-to-end into closed rings.
// Member ways of an administrative relation arrive in arbitrary order and
// direction, so each chain grows by appending whichever unused segment
// touches its tail, reversed if needed. A chain ending where it started
// becomes a ring; a leftover open chain is closed explicitly, matching how
// the importer treats responses that describe one long unclosed ring.
// Chains with fewer than 4 points after closing are dropped.
func stitchRings(segments []orb.LineString) []orb.Ring {
	used := make([]bool, len(segments))
	var rings []orb.Ring

	for i := range segments {
		if used[i] {
			continue
		}
		used[i] = true
		chain := append(orb.LineString{}, segments[i]...)

		for {
			tail := chain[len(chain)-1]
			if tail == chain[0] && len(chain) > 2 {
				break
			}
			found := false
			for j := range segments {
				if used[j] {
					continue
				}
				seg := segments[j]
				switch {
				case seg[0] == tail:
					chain = append(chain, seg[1:]...)
				case seg[len(seg)-1] == tail:
					for k := len(seg) - 2; k >= 0; k-- {
						chain = append(chain, seg[k])
					}
				default:
					continue
				}
				used[j] = true
				found = true
				break
			}
			if !found {
				break
			}
		}

		if chain[0] != chain[len(chain)-1] {
			chain = append(chain, chain[0])
		}
		if len(chain) < 4 {
			continue
		}
		rings = append(rings, orb.Ring(chain))
	}

	return rings
}
