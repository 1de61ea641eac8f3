package hydroquebec

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/hydro-ingest/internal/domain"
)

// DefaultFeedURL is the public stations-and-readings document.
const DefaultFeedURL = "https://www.hydroquebec.com/data/documents-donnees/donnees-ouvertes/json/Donnees_VUE_STATIONS_ET_TARAGES.json"

// maxBodyBytes caps the payload read; the live document is a few MB.
const maxBodyBytes = 256 << 20

// Client retrieves the Hydro-Québec open-data feed. It performs exactly one
// request per Fetch; retry policy belongs to the caller.
type Client struct {
	httpClient *http.Client
	url        string
	logger     *slog.Logger
}

// NewClient creates a feed client with the given per-request timeout.
func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	if url == "" {
		url = DefaultFeedURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
		logger:     logger,
	}
}

// Fetch downloads the feed and parses its envelope; station entries are
// decoded later, one at a time. The outcome is always set; the document
// is nil unless the outcome is OutcomeSuccess. Transport failures, including
// panics raised below the HTTP client, are reported as OutcomeUnreachable.
func (c *Client) Fetch(ctx context.Context) (doc *domain.FeedDocument, outcome domain.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			outcome = domain.OutcomeUnreachable
			err = fmt.Errorf("%w: transport panic: %v", domain.ErrNetworkUnreachable, r)
		}
	}()

	body, err := c.get(ctx)
	if err != nil {
		return nil, domain.OutcomeOf(err), err
	}

	doc, err = domain.ParseFeedDocument(body)
	if err != nil {
		return nil, domain.OutcomeOf(err), err
	}

	c.logger.Debug("feed fetched", "stations", len(doc.Stations), "bytes", len(body))
	return doc, domain.OutcomeSuccess, nil
}

func (c *Client) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", domain.ErrNetworkUnreachable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request feed: %w", domain.ErrNetworkUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %s", domain.ErrNetworkUnreachable, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", domain.ErrNetworkUnreachable, err)
	}
	return body, nil
}
