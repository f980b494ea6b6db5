package tasks

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/listsync/internal/models"
	"github.com/desertthunder/listsync/internal/shared"
)

// TransformOptions are the column mappings and member flags used to build payloads.
type TransformOptions struct {
	EmailColumn     string
	FirstNameColumn string
	LastNameColumn  string
	LanguageColumn  string
	MergeFields     []string // extra columns mapped onto merge fields with the same tag
	GroupingColumns []string // columns holding comma separated interest names, one per category
	DoubleOptIn     bool
	Replace         bool // set every interest of a category, clearing the unnamed ones
}

// TransformOptionsFromConfig maps the [columns] and [sync] sections onto [TransformOptions].
func TransformOptionsFromConfig(cfg *shared.Config) TransformOptions {
	return TransformOptions{
		EmailColumn:     cfg.Columns.Email,
		FirstNameColumn: cfg.Columns.FirstName,
		LastNameColumn:  cfg.Columns.LastName,
		LanguageColumn:  cfg.Columns.Language,
		MergeFields:     cfg.Columns.MergeFields,
		GroupingColumns: cfg.Columns.GroupingColumns,
		DoubleOptIn:     cfg.Sync.DoubleOptIn,
		Replace:         cfg.Sync.ReplaceInterests,
	}
}

// mergeBinding ties an input column to a merge field defined on the list.
type mergeBinding struct {
	column string
	tag    string
	field  models.MergeField
}

// Transformer converts rows into [models.Member] payloads. It holds no I/O and is safe to
// reuse for every row of a run once built.
type Transformer struct {
	opts     TransformOptions
	meta     *models.Metadata
	bindings []mergeBinding
}

// NewTransformer validates the configured merge fields against schema and metadata once,
// logging a warning for each one that cannot be used.
func NewTransformer(schema models.Schema, meta *models.Metadata, opts TransformOptions, logger *log.Logger) *Transformer {
	if logger == nil {
		logger = log.Default()
	}
	t := &Transformer{opts: opts, meta: meta}

	for _, name := range opts.MergeFields {
		col, ok := schema.Lookup(name)
		if !ok {
			logger.Warnf("Field '%s' is configured on data transfer but cannot be found on any columns.", name)
			continue
		}
		field, ok := meta.MergeField(name)
		if !ok {
			logger.Warnf("Field '%s' is not predefined on Mailchimp.", name)
			continue
		}
		t.bindings = append(t.bindings, mergeBinding{column: col.Name, tag: strings.ToUpper(col.Name), field: field})
	}
	return t
}

// Status is the member status implied by the double opt-in flag.
func (t *Transformer) Status() models.MemberStatus {
	if t.opts.DoubleOptIn {
		return models.StatusPending
	}
	return models.StatusSubscribed
}

// EmailKey returns the email text of row as-is, the identity used for deduplication.
func (t *Transformer) EmailKey(row models.Row) string {
	_, v, _ := row.Lookup(t.opts.EmailColumn)
	return models.TextValue(v)
}

// Transform builds the member payload for one row.
// It fails with [shared.ErrMissingColumn] when the email column is absent.
func (t *Transformer) Transform(row models.Row) (models.Member, error) {
	_, email, ok := row.Lookup(t.opts.EmailColumn)
	if !ok {
		return models.Member{}, fmt.Errorf("%w: '%s'", shared.ErrMissingColumn, t.opts.EmailColumn)
	}

	m := models.Member{
		EmailAddress: models.TextValue(email),
		Status:       t.Status(),
		MergeFields: map[string]any{
			"FNAME": t.text(row, t.opts.FirstNameColumn),
			"LNAME": t.text(row, t.opts.LastNameColumn),
		},
	}

	for _, b := range t.bindings {
		_, v, ok := row.Lookup(b.column)
		if !ok {
			continue
		}
		if b.field.Type.IsAddress() {
			m.MergeFields[b.tag] = addressValue(v)
		} else {
			m.MergeFields[b.tag] = mergeValue(v)
		}
	}

	if interests := t.interests(row); len(interests) > 0 {
		m.Interests = interests
	}

	if t.opts.LanguageColumn != "" {
		if lang := t.text(row, t.opts.LanguageColumn); lang != "" {
			m.Language = lang
		}
	}

	return m, nil
}

func (t *Transformer) text(row models.Row, column string) string {
	if column == "" {
		return ""
	}
	_, v, _ := row.Lookup(column)
	return models.TextValue(v)
}

// interests applies the merge or replace policy to every grouping column present in row.
// An empty or null value names no interest, so replace mode clears the whole category.
func (t *Transformer) interests(row models.Row) map[string]bool {
	if len(t.opts.GroupingColumns) == 0 {
		return nil
	}
	out := make(map[string]bool)
	for _, category := range t.opts.GroupingColumns {
		_, v, ok := row.Lookup(category)
		if !ok {
			continue
		}
		named := SplitInterestNames(models.TextValue(v))
		for _, in := range t.meta.InterestsFor(category) {
			selected := slices.Contains(named, in.Name)
			if t.opts.Replace {
				out[in.ID] = selected
			} else if selected {
				out[in.ID] = true
			}
		}
	}
	return out
}

// SplitInterestNames splits a comma separated cell, trimming names and dropping empty ones.
func SplitInterestNames(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			names = append(names, p)
		}
	}
	return names
}

func mergeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case string, bool, int, int32, int64, float32, float64, json.Number:
		return t
	default:
		return models.TextValue(v)
	}
}

// addressValue re-encodes structured input as an [models.Address]. Values that are not a
// JSON object pass through as their raw text.
func addressValue(v any) any {
	var obj map[string]any
	switch t := v.(type) {
	case map[string]any:
		obj = t
	case string:
		if err := json.Unmarshal([]byte(t), &obj); err != nil || obj == nil {
			return t
		}
	case []byte:
		if err := json.Unmarshal(t, &obj); err != nil || obj == nil {
			return string(t)
		}
	default:
		return models.TextValue(v)
	}
	get := func(k string) string { return models.TextValue(obj[k]) }
	return models.Address{
		Addr1:   get("addr1"),
		Addr2:   get("addr2"),
		City:    get("city"),
		State:   get("state"),
		Zip:     get("zip"),
		Country: get("country"),
	}
}
