package db

import "context"

// AggregateQuerier groups four of the five fan-out queries the project
// aggregate reader issues in parallel (the fifth, versions, is
// GetVersionsForProjects), kept separate
// from ProjectQuerier because callers only need this set when
// building the full read-side projection, not for plain CRUD.
type AggregateQuerier interface {
	GetGalleryItemsForProjects(ctx context.Context, projectIDs []int64) ([]GalleryItem, error)
	GetLinkURLsForProjects(ctx context.Context, projectIDs []int64) (map[int64]map[string]string, error)
	GetLoadersForProjects(ctx context.Context, projectIDs []int64) (map[int64][]string, error)
	GetCategoriesForProjects(ctx context.Context, projectIDs []int64) (map[int64][]string, map[int64][]string, error)
}

func (q *Queries) GetGalleryItemsForProjects(ctx context.Context, projectIDs []int64) ([]GalleryItem, error) {
	if len(projectIDs) == 0 {
		return nil, nil
	}
	rows, err := q.db.Query(ctx, `
		SELECT id, project_id, url, featured, ordering
		FROM gallery_items WHERE project_id = ANY($1) ORDER BY ordering`, projectIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GalleryItem
	for rows.Next() {
		var g GalleryItem
		if err := rows.Scan(&g.ID, &g.ProjectID, &g.URL, &g.Featured, &g.Ordering); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (q *Queries) GetLinkURLsForProjects(ctx context.Context, projectIDs []int64) (map[int64]map[string]string, error) {
	out := make(map[int64]map[string]string, len(projectIDs))
	if len(projectIDs) == 0 {
		return out, nil
	}
	rows, err := q.db.Query(ctx, `
		SELECT project_id, platform, url FROM link_urls WHERE project_id = ANY($1)`, projectIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var projectID int64
		var platform, url string
		if err := rows.Scan(&projectID, &platform, &url); err != nil {
			return nil, err
		}
		if out[projectID] == nil {
			out[projectID] = make(map[string]string)
		}
		out[projectID][platform] = url
	}
	return out, rows.Err()
}

// GetLoadersForProjects aggregates the loader set a project's listed
// versions carry, denormalised for the reader's in-memory join.
func (q *Queries) GetLoadersForProjects(ctx context.Context, projectIDs []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(projectIDs))
	if len(projectIDs) == 0 {
		return out, nil
	}
	rows, err := q.db.Query(ctx, `
		SELECT DISTINCT v.project_id, l.loader
		FROM versions v
		JOIN version_loaders l ON l.version_id = v.id
		WHERE v.project_id = ANY($1)`, projectIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var projectID int64
		var loader string
		if err := rows.Scan(&projectID, &loader); err != nil {
			return nil, err
		}
		out[projectID] = append(out[projectID], loader)
	}
	return out, rows.Err()
}

// GetCategoriesForProjects returns (primary, additional) category
// slices per project id.
func (q *Queries) GetCategoriesForProjects(ctx context.Context, projectIDs []int64) (map[int64][]string, map[int64][]string, error) {
	primary := make(map[int64][]string, len(projectIDs))
	additional := make(map[int64][]string, len(projectIDs))
	if len(projectIDs) == 0 {
		return primary, additional, nil
	}
	rows, err := q.db.Query(ctx, `
		SELECT project_id, category, is_additional FROM project_categories WHERE project_id = ANY($1)`, projectIDs)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var projectID int64
		var category string
		var additionalFlag bool
		if err := rows.Scan(&projectID, &category, &additionalFlag); err != nil {
			return nil, nil, err
		}
		if additionalFlag {
			additional[projectID] = append(additional[projectID], category)
		} else {
			primary[projectID] = append(primary[projectID], category)
		}
	}
	return primary, additional, rows.Err()
}
