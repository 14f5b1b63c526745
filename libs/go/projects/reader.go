// Package projects implements the cached aggregate project-read path
// of spec §4.5: given a mixed list of project ids and slugs, it fans
// out five queries in parallel (versions, gallery, links, loaders,
// categories), joins the results in memory, and caches the projection
// per project id and slug. Version fields are not loaded.
package projects

import (
	"context"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/labrinth-gg/labrinth/libs/go/cache"
	"github.com/labrinth-gg/labrinth/libs/go/db"
	"github.com/labrinth-gg/labrinth/libs/go/helpers"
	"github.com/labrinth-gg/labrinth/libs/go/metrics"
)

// Store is the ledger slice the reader fans out across.
type Store interface {
	GetProjectsByIDsOrSlugs(ctx context.Context, ids []int64, slugs []string) ([]db.Project, error)
	db.VersionQuerier
	db.AggregateQuerier
}

// AggregateProjection is the fully-populated, JSON-serializable
// projection for one project — the unit the reader caches and returns.
type AggregateProjection struct {
	Project              db.Project        `json:"project"`
	Versions             []db.Version      `json:"versions"`
	GalleryItems         []db.GalleryItem  `json:"gallery_items"`
	LinkURLs             map[string]string `json:"link_urls"`
	Loaders              []string          `json:"loaders"`
	Categories           []string          `json:"categories"`
	AdditionalCategories []string          `json:"additional_categories"`
}

type Reader struct {
	store Store
	cache *cache.Cache
}

func NewReader(store Store, c *cache.Cache) *Reader {
	return &Reader{store: store, cache: c}
}

// GetMany resolves a mixed list of base-62 ids and slugs into
// projections, preserving the order requested.
func (r *Reader) GetMany(ctx context.Context, queries []string) ([]AggregateProjection, error) {
	var candidateIDs []int64
	var candidateSlugs []string
	for _, q := range queries {
		if id, ok := helpers.DecodeID(q); ok {
			candidateIDs = append(candidateIDs, id)
		}
		candidateSlugs = append(candidateSlugs, strings.ToLower(q))
	}

	byID, missingIDs, bySlug, missingSlugs := cache.GetKeysWithSlug[AggregateProjection](
		ctx, r.cache, cache.KindProject, candidateIDs, candidateSlugs)

	cacheResult := "full_hit"
	if len(missingIDs) > 0 || len(missingSlugs) > 0 {
		cacheResult = "partial_miss"
	}
	timer := prometheus.NewTimer(metrics.AggregateReadDuration.WithLabelValues(cacheResult))
	defer timer.ObserveDuration()

	if len(missingIDs) > 0 || len(missingSlugs) > 0 {
		loaded, err := r.load(ctx, missingIDs, missingSlugs)
		if err != nil {
			return nil, err
		}
		for id, proj := range loaded {
			byID[id] = proj
			if proj.Project.Slug != nil {
				bySlug[strings.ToLower(*proj.Project.Slug)] = proj
			}
		}
		cache.SetMany(ctx, r.cache, cache.KindProject, loaded)
		for _, proj := range loaded {
			if proj.Project.Slug != nil {
				r.cache.Set(ctx, cache.SlugKey(cache.KindProject, *proj.Project.Slug), proj)
			}
		}
	}

	out := make([]AggregateProjection, 0, len(queries))
	seen := make(map[int64]bool)
	for _, q := range queries {
		var proj AggregateProjection
		var ok bool
		if id, decodeOK := helpers.DecodeID(q); decodeOK {
			proj, ok = byID[id]
		}
		if !ok {
			proj, ok = bySlug[strings.ToLower(q)]
		}
		if !ok {
			continue
		}
		if seen[proj.Project.ID] {
			continue
		}
		seen[proj.Project.ID] = true
		out = append(out, proj)
	}
	return out, nil
}

// load fans out the relational read for the ids and slugs that missed
// the cache, then runs five concurrent queries (versions, gallery,
// links, loaders, categories) and joins them; there is no version-fields
// query.
func (r *Reader) load(ctx context.Context, ids []int64, slugs []string) (map[int64]AggregateProjection, error) {
	projectList, err := r.store.GetProjectsByIDsOrSlugs(ctx, ids, slugs)
	if err != nil {
		return nil, err
	}
	if len(projectList) == 0 {
		return map[int64]AggregateProjection{}, nil
	}

	projectIDs := make([]int64, len(projectList))
	for i, p := range projectList {
		projectIDs[i] = p.ID
	}

	var (
		versions         []db.Version
		galleryItems     []db.GalleryItem
		linkURLs         map[int64]map[string]string
		loaders          map[int64][]string
		primaryCats      map[int64][]string
		additionalCats   map[int64][]string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		versions, err = r.store.GetVersionsForProjects(gctx, projectIDs)
		return err
	})
	g.Go(func() error {
		var err error
		galleryItems, err = r.store.GetGalleryItemsForProjects(gctx, projectIDs)
		return err
	})
	g.Go(func() error {
		var err error
		linkURLs, err = r.store.GetLinkURLsForProjects(gctx, projectIDs)
		return err
	})
	g.Go(func() error {
		var err error
		loaders, err = r.store.GetLoadersForProjects(gctx, projectIDs)
		return err
	})
	g.Go(func() error {
		var err error
		primaryCats, additionalCats, err = r.store.GetCategoriesForProjects(gctx, projectIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	versionsByProject := make(map[int64][]db.Version)
	for _, v := range versions {
		versionsByProject[v.ProjectID] = append(versionsByProject[v.ProjectID], v)
	}
	galleryByProject := make(map[int64][]db.GalleryItem)
	for _, gi := range galleryItems {
		galleryByProject[gi.ProjectID] = append(galleryByProject[gi.ProjectID], gi)
	}

	out := make(map[int64]AggregateProjection, len(projectList))
	for _, p := range projectList {
		pv := versionsByProject[p.ID]
		sort.Slice(pv, func(i, j int) bool { return pv[i].DatePublished.After(pv[j].DatePublished) })

		updated := p.Published
		if len(pv) > 0 && pv[0].DatePublished.After(updated) {
			updated = pv[0].DatePublished
		}
		p.Updated = updated

		out[p.ID] = AggregateProjection{
			Project:              p,
			Versions:             pv,
			GalleryItems:         galleryByProject[p.ID],
			LinkURLs:             linkURLs[p.ID],
			Loaders:              loaders[p.ID],
			Categories:           primaryCats[p.ID],
			AdditionalCategories: additionalCats[p.ID],
		}
	}
	return out, nil
}
