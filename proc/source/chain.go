package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/leeineian/jukebox/sys"
	"golang.org/x/time/rate"
)

const (
	MsgChainProviderFailed  = "%s failed for %q: %v"
	MsgChainProviderPanic   = "%s panicked for %q: %v"
	MsgChainProviderEmpty   = "%s returned nothing for %q"
	MsgChainResolved        = "Resolved %q via %s: %s"
	MsgChainEnrichFailed    = "Enrichment failed for %s, keeping search result"
	MsgChainNormalized      = "Normalized %s -> %s"
	MsgChainLimiterCanceled = "rate limiter: %w"
)

// Searcher is a metadata-search provider returning its top hit, or nil.
type Searcher interface {
	SearchTrack(ctx context.Context, query string) (*Track, error)
}

// Extractor turns a URL or search token into a track, or nil.
type Extractor interface {
	Extract(ctx context.Context, target string) (*Track, error)
}

// Chain resolves queries through a fixed provider order: metadata search,
// then the primary extractor, then (for URLs) the secondary extractor.
// Any provider may be nil, which counts as unavailable.
type Chain struct {
	Search    Searcher
	Primary   Extractor
	Secondary Extractor

	// Timeout bounds every single provider call.
	Timeout time.Duration
	Limiter *rate.Limiter
}

func NewChain(search Searcher, primary, secondary Extractor, timeout time.Duration, perSecond float64) *Chain {
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &Chain{
		Search:    search,
		Primary:   primary,
		Secondary: secondary,
		Timeout:   timeout,
		Limiter:   rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Resolve turns a query into a track. Provider errors never escape; when no
// provider produces a track the result is a *ResolutionError.
func (c *Chain) Resolve(ctx context.Context, query string, requester Requester) (*Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &ResolutionError{Query: query, Err: ErrEmptyQuery}
	}

	var t *Track
	var reason error
	if IsURL(query) {
		t, reason = c.resolveURL(ctx, query), ErrNoProvider
	} else {
		t, reason = c.resolveSearch(ctx, query), ErrNoResults
	}
	if t == nil {
		if err := ctx.Err(); err != nil {
			return nil, &ResolutionError{Query: query, Err: fmt.Errorf("%w: %w", reason, err)}
		}
		return nil, &ResolutionError{Query: query, Err: reason}
	}

	t.Requester = requester
	sys.LogSource(MsgChainResolved, query, t.Provider, t.DisplayTitle())
	return t, nil
}

func (c *Chain) resolveSearch(ctx context.Context, query string) *Track {
	if c.Search != nil {
		hit := c.call(ctx, ProviderYTMusic, query, func(ctx context.Context) (*Track, error) {
			return c.Search.SearchTrack(ctx, query)
		})
		if hit != nil {
			if hit.URL == "" || c.Primary == nil {
				return hit
			}
			enriched := c.call(ctx, ProviderYtdlp, hit.URL, func(ctx context.Context) (*Track, error) {
				return c.Primary.Extract(ctx, hit.URL)
			})
			if enriched == nil {
				sys.LogSourceDebug(MsgChainEnrichFailed, hit.URL)
				return hit
			}
			return merge(enriched, hit)
		}
	}

	if c.Primary != nil {
		token := searchTokenPrefix + query
		return c.call(ctx, ProviderYtdlp, token, func(ctx context.Context) (*Track, error) {
			return c.Primary.Extract(ctx, token)
		})
	}
	return nil
}

func (c *Chain) resolveURL(ctx context.Context, raw string) *Track {
	target := NormalizeMusicURL(raw)
	if target != raw {
		sys.LogSourceDebug(MsgChainNormalized, raw, target)
	}

	if c.Primary != nil {
		if t := c.call(ctx, ProviderYtdlp, target, func(ctx context.Context) (*Track, error) {
			return c.Primary.Extract(ctx, target)
		}); t != nil {
			return t
		}
	}
	if c.Secondary != nil {
		return c.call(ctx, ProviderYouTube, target, func(ctx context.Context) (*Track, error) {
			return c.Secondary.Extract(ctx, target)
		})
	}
	return nil
}

// call runs one provider under the rate limiter and timeout. Errors and
// panics are logged and reported as a nil track.
func (c *Chain) call(ctx context.Context, name, target string, fn func(ctx context.Context) (*Track, error)) *Track {
	if ctx.Err() != nil {
		return nil
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			sys.LogWarn(MsgChainProviderFailed, name, target, fmt.Errorf(MsgChainLimiterCanceled, err))
			return nil
		}
	}

	callCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	type result struct {
		track *Track
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				sys.LogWarn(MsgChainProviderPanic, name, target, r)
				done <- result{}
			}
		}()
		t, err := fn(callCtx)
		done <- result{t, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-callCtx.Done():
		res.err = callCtx.Err()
	}
	if res.err != nil {
		sys.LogWarn(MsgChainProviderFailed, name, target, res.err)
		return nil
	}
	if res.track == nil {
		sys.LogSourceDebug(MsgChainProviderEmpty, name, target)
	}
	return res.track
}

// merge fills fields the extractor left blank from the search hit, and keeps
// the hit's stream capability as a fallback behind the extractor's.
func merge(enriched, hit *Track) *Track {
	if enriched.Artist == "" {
		enriched.Artist = hit.Artist
	}
	if enriched.Album == "" {
		enriched.Album = hit.Album
	}
	if enriched.Thumbnail == "" {
		enriched.Thumbnail = hit.Thumbnail
	}
	if enriched.Duration == 0 {
		enriched.Duration = hit.Duration
	}
	if enriched.Title == "" || enriched.Title == hit.URL {
		enriched.Title = hit.Title
	}
	switch {
	case enriched.Opener == nil:
		enriched.Opener = hit.Opener
	case hit.Opener != nil:
		enriched.Opener = fallbackOpener{enriched.Opener, hit.Opener}
	}
	return enriched
}
