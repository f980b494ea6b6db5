package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/listsync/internal/models"
	"github.com/desertthunder/listsync/internal/shared"
)

type categoriesPage struct {
	Categories []models.Category `json:"categories"`
	TotalItems int               `json:"total_items"`
}

type interestsPage struct {
	Interests  []models.Interest `json:"interests"`
	TotalItems int               `json:"total_items"`
}

type mergeFieldsPage struct {
	MergeFields []models.MergeField `json:"merge_fields"`
	TotalItems  int                 `json:"total_items"`
}

// paginate GETs endpoint with count/offset until offset reaches total_items.
func paginate[T any](ctx context.Context, t Transport, endpoint string, size int, decode func([]byte) ([]T, int, error)) ([]T, error) {
	var all []T
	for offset := 0; ; offset += size {
		body, err := t.Send(ctx, http.MethodGet, fmt.Sprintf("%s?count=%d&offset=%d", endpoint, size, offset), nil)
		if err != nil {
			return nil, err
		}
		items, total, err := decode(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", shared.ErrDataError, endpoint, err)
		}
		all = append(all, items...)
		if len(items) == 0 || offset+size >= total {
			return all, nil
		}
	}
}

// MetadataResolver fetches and memoizes the interest categories, interests and merge fields of a list.
type MetadataResolver struct {
	transport Transport
	listID    string
	pageSize  int
	logger    *log.Logger

	categories  []models.Category
	mergeFields []models.MergeField
	interests   map[string][]models.Interest
}

// NewMetadataResolver creates a resolver for listID.
func NewMetadataResolver(t Transport, listID string, logger *log.Logger) *MetadataResolver {
	if logger == nil {
		logger = log.Default()
	}
	return &MetadataResolver{
		transport: t,
		listID:    listID,
		pageSize:  DefaultPageSize,
		logger:    logger,
		interests: make(map[string][]models.Interest),
	}
}

// ListCategories returns every interest category of the list. The result is fetched once.
func (r *MetadataResolver) ListCategories(ctx context.Context) ([]models.Category, error) {
	if r.categories != nil {
		return r.categories, nil
	}
	endpoint := fmt.Sprintf("/lists/%s/interest-categories", r.listID)
	cats, err := paginate(ctx, r.transport, endpoint, r.pageSize, func(b []byte) ([]models.Category, int, error) {
		var p categoriesPage
		err := json.Unmarshal(b, &p)
		return p.Categories, p.TotalItems, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch interest categories: %w", err)
	}
	if cats == nil {
		cats = []models.Category{}
	}
	r.categories = cats
	return cats, nil
}

// ListInterests returns the interests of one category. Results are memoized per category.
func (r *MetadataResolver) ListInterests(ctx context.Context, categoryID string) ([]models.Interest, error) {
	if cached, ok := r.interests[categoryID]; ok {
		return cached, nil
	}
	endpoint := fmt.Sprintf("/lists/%s/interest-categories/%s/interests", r.listID, categoryID)
	interests, err := paginate(ctx, r.transport, endpoint, r.pageSize, func(b []byte) ([]models.Interest, int, error) {
		var p interestsPage
		err := json.Unmarshal(b, &p)
		return p.Interests, p.TotalItems, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch interests of category %s: %w", categoryID, err)
	}
	r.interests[categoryID] = interests
	return interests, nil
}

// ListMergeFields returns the merge fields of the list. The result is fetched once.
func (r *MetadataResolver) ListMergeFields(ctx context.Context) ([]models.MergeField, error) {
	if r.mergeFields != nil {
		return r.mergeFields, nil
	}
	endpoint := fmt.Sprintf("/lists/%s/merge-fields", r.listID)
	fields, err := paginate(ctx, r.transport, endpoint, r.pageSize, func(b []byte) ([]models.MergeField, int, error) {
		var p mergeFieldsPage
		err := json.Unmarshal(b, &p)
		return p.MergeFields, p.TotalItems, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch merge fields: %w", err)
	}
	if fields == nil {
		fields = []models.MergeField{}
	}
	for _, f := range fields {
		if !f.Type.Known() {
			r.logger.Warn("unknown merge field type, treating as text", "tag", f.Tag, "type", f.Type)
		}
	}
	r.mergeFields = fields
	return fields, nil
}

// Resolve fetches the metadata a run needs.
//
// Every name in groupingColumns must match a category title (ignoring case), otherwise
// [shared.ErrUnknownCategory] is returned. Interests are fetched only for those categories.
func (r *MetadataResolver) Resolve(ctx context.Context, groupingColumns []string) (*models.Metadata, error) {
	meta := &models.Metadata{
		Categories:  make(map[string]models.Category),
		Interests:   make(map[string][]models.Interest),
		MergeFields: make(map[string]models.MergeField),
	}

	if len(groupingColumns) > 0 {
		cats, err := r.ListCategories(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range cats {
			meta.Categories[strings.ToLower(c.Title)] = c
		}

		for _, name := range groupingColumns {
			key := strings.ToLower(name)
			cat, ok := meta.Categories[key]
			if !ok {
				return nil, fmt.Errorf("%w: '%s'", shared.ErrUnknownCategory, name)
			}
			if _, done := meta.Interests[key]; done {
				continue
			}
			interests, err := r.ListInterests(ctx, cat.ID)
			if err != nil {
				return nil, err
			}
			meta.Interests[key] = interests
		}
	}

	fields, err := r.ListMergeFields(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		meta.MergeFields[strings.ToLower(f.Tag)] = f
	}

	r.logger.Debug("resolved metadata", "categories", len(meta.Categories), "merge_fields", len(meta.MergeFields))
	return meta, nil
}
