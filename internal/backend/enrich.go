package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"cookidoo-planner/internal/planner"
	"cookidoo-planner/internal/recipe"
)

// Enricher fills in the image of recipes that come back with a page URL
// but no picture, by reading the page's og: meta tags.
type Enricher struct {
	next       planner.Backend
	httpClient *http.Client
	logger     *slog.Logger
}

// NewEnricher wraps a backend.
func NewEnricher(next planner.Backend, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		next:       next,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func (e *Enricher) GenerateMany(ctx context.Context, req planner.PlanRequest) (planner.Plan, error) {
	plan, err := e.next.GenerateMany(ctx, req)
	if err != nil {
		return nil, err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, row := range plan {
		for _, r := range row {
			if !needsEnrichment(r) {
				continue
			}
			g.Go(func() error {
				e.enrich(gctx, r)
				return nil
			})
		}
	}
	_ = g.Wait()
	return plan, nil
}

func (e *Enricher) GenerateOne(ctx context.Context, req planner.SlotRequest) (*recipe.Recipe, error) {
	r, err := e.next.GenerateOne(ctx, req)
	if err != nil {
		return nil, err
	}
	if needsEnrichment(r) {
		e.enrich(ctx, r)
	}
	return r, nil
}

func needsEnrichment(r *recipe.Recipe) bool {
	return r != nil && r.URL != "" && r.Image == ""
}

// enrich never fails the request; a page that cannot be read leaves the recipe as it is.
func (e *Enricher) enrich(ctx context.Context, r *recipe.Recipe) {
	meta, err := e.fetchMeta(ctx, r.URL)
	if err != nil {
		e.logger.Debug("recipe enrichment skipped", "recipe_id", r.ID, "url", r.URL, "error", err)
		return
	}
	if r.Image == "" {
		r.Image = meta["og:image"]
	}
	if r.Thumbnail == "" {
		r.Thumbnail = r.Image
	}
	if r.Name == "" {
		r.Name = meta["og:title"]
	}
}

func (e *Enricher) fetchMeta(ctx context.Context, url string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch URL: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	meta := make(map[string]string)
	doc.Find("meta[property^='og:']").Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		content, _ := s.Attr("content")
		if content = strings.TrimSpace(content); content != "" {
			meta[prop] = content
		}
	})
	return meta, nil
}
