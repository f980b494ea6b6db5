package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/desertthunder/listsync/internal/models"
	"github.com/desertthunder/listsync/internal/shared"
)

// ListStats is the subset of list statistics shown by `list info`.
type ListStats struct {
	MemberCount      int    `json:"member_count"`
	UnsubscribeCount int    `json:"unsubscribe_count"`
	CleanedCount     int    `json:"cleaned_count"`
	MergeFieldCount  int    `json:"merge_field_count"`
	LastSubDate      string `json:"last_sub_date,omitempty"`
}

// ListInfo is the response of GET /lists/{id}.
type ListInfo struct {
	ID    string    `json:"id"`
	WebID int       `json:"web_id"`
	Name  string    `json:"name"`
	Stats ListStats `json:"stats"`
}

// ListClient performs list-level calls: lookup and batch member upsert.
type ListClient struct {
	transport Transport
	listID    string
}

// NewListClient creates a client for listID.
func NewListClient(t Transport, listID string) *ListClient {
	return &ListClient{transport: t, listID: listID}
}

func (c *ListClient) notFound(err error) error {
	if StatusCode(err) == http.StatusNotFound {
		return fmt.Errorf("%w: %s", shared.ErrListNotFound, c.listID)
	}
	return err
}

// FindList looks the list up. A 404 becomes [shared.ErrListNotFound].
func (c *ListClient) FindList(ctx context.Context) (*ListInfo, error) {
	body, err := c.transport.Send(ctx, http.MethodGet, "/lists/"+c.listID, nil)
	if err != nil {
		return nil, c.notFound(err)
	}
	var info ListInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", shared.ErrDataError, c.listID, err)
	}
	return &info, nil
}

// PushMembers submits one batch upsert and returns the raw response body for the aggregator.
func (c *ListClient) PushMembers(ctx context.Context, req models.BatchRequest) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}
	body, err := c.transport.Send(ctx, http.MethodPost, "/lists/"+c.listID, payload)
	if err != nil {
		return nil, c.notFound(err)
	}
	return body, nil
}
