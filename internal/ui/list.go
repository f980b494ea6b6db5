package ui

import (
	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/listsync/internal/models"
)

var _ list.Item = failureItem{}

// failureItem wraps a masked [models.MemberError] to implement [list.Item].
type failureItem struct {
	err models.MemberError
}

func (i failureItem) FilterValue() string { return i.err.EmailAddress }
func (i failureItem) Title() string       { return i.err.EmailAddress }
func (i failureItem) Description() string {
	if i.err.ErrorCode == "" {
		return i.err.Error
	}
	return i.err.ErrorCode + " • " + i.err.Error
}

func failureItems(errs []models.MemberError) []list.Item {
	items := make([]list.Item, len(errs))
	for i, e := range errs {
		items[i] = failureItem{err: e}
	}
	return items
}
