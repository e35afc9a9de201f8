// Package pagination provides lazy sequential iteration over paginated
// catalog endpoints.
//
// The catalog API reports exhaustion with a null "next" link. The Pager
// turns that into an explicit ErrNoMorePages sentinel so callers can
// distinguish "listing exhausted" from "call failed". Pages are pulled one
// at a time on demand; there is no parallel fan-out.
package pagination

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/arvelid/gamelake/pkg/client"
)

// ErrNoMorePages is returned by Next once the listing is exhausted or the
// page cap has been reached.
var ErrNoMorePages = errors.New("no more pages")

// PageFetcher fetches a single page of a catalog endpoint. Implemented by
// *client.Client; tests substitute fakes.
type PageFetcher interface {
	GetPage(ctx context.Context, endpoint string, params url.Values) (*client.Page, error)
}

// Config holds pager configuration.
type Config struct {
	// Endpoint is the catalog endpoint to page through (e.g. "games").
	Endpoint string

	// Params are the base query parameters applied to every page request.
	// The pager manages "page" and "page_size" itself.
	Params url.Values

	// PageSize is the number of records requested per page.
	PageSize int

	// MaxPages bounds the pull for testing or partial loads. 0 means
	// iterate until the API reports no next page.
	MaxPages int
}

// Pager iterates over the pages of one endpoint.
type Pager struct {
	fetcher PageFetcher
	config  Config

	page int
	done bool
}

// New creates a pager over the given endpoint.
func New(fetcher PageFetcher, cfg Config) *Pager {
	return &Pager{
		fetcher: fetcher,
		config:  cfg,
	}
}

// Done reports whether the sequence is exhausted.
func (p *Pager) Done() bool {
	return p.done
}

// PagesFetched returns how many pages have been pulled so far.
func (p *Pager) PagesFetched() int {
	return p.page
}

// Next fetches the next page. It returns ErrNoMorePages once the API
// reports exhaustion or the configured page cap is reached; any other error
// is a fetch failure and terminates the sequence.
func (p *Pager) Next(ctx context.Context) (*client.Page, error) {
	if p.done {
		return nil, ErrNoMorePages
	}
	if p.config.MaxPages > 0 && p.page >= p.config.MaxPages {
		p.done = true
		log.Debug().
			Str("endpoint", p.config.Endpoint).
			Int("max_pages", p.config.MaxPages).
			Msg("Page cap reached")
		return nil, ErrNoMorePages
	}

	pageNum := p.page + 1

	params := url.Values{}
	for k, vs := range p.config.Params {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	params.Set("page", strconv.Itoa(pageNum))
	if p.config.PageSize > 0 {
		params.Set("page_size", strconv.Itoa(p.config.PageSize))
	}

	page, err := p.fetcher.GetPage(ctx, p.config.Endpoint, params)
	if err != nil {
		p.done = true
		return nil, err
	}

	p.page = pageNum

	// An empty results list also terminates: some endpoints keep a next
	// link on the final page.
	if !page.HasNext() || len(page.Results) == 0 {
		p.done = true
	}

	if len(page.Results) == 0 {
		return nil, ErrNoMorePages
	}

	return page, nil
}
