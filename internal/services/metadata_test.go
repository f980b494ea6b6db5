package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/desertthunder/listsync/internal/models"
	"github.com/desertthunder/listsync/internal/shared"
	tu "github.com/desertthunder/listsync/internal/testing"
)

func newFake(t *testing.T) *tu.FakeMailchimp {
	t.Helper()
	fake := tu.NewFakeMailchimp(t, "list1")
	fake.Categories = []models.Category{
		{ID: "cat-vip", Title: "VIP", Type: "checkboxes"},
		{ID: "cat-news", Title: "Newsletter", Type: "checkboxes"},
	}
	fake.Interests["cat-vip"] = []models.Interest{
		{ID: "i-gold", CategoryID: "cat-vip", Name: "Gold"},
		{ID: "i-silver", CategoryID: "cat-vip", Name: "Silver"},
	}
	fake.Interests["cat-news"] = []models.Interest{
		{ID: "i-weekly", CategoryID: "cat-news", Name: "Weekly"},
	}
	fake.MergeFields = []models.MergeField{
		{MergeID: 1, Tag: "FNAME", Name: "First Name", Type: models.MergeText},
		{MergeID: 2, Tag: "LNAME", Name: "Last Name", Type: models.MergeText},
		{MergeID: 3, Tag: "ADDRESS", Name: "Address", Type: models.MergeAddress},
	}
	return fake
}

func newTestTransport(url string) *HTTPTransport {
	return NewHTTPTransport(url, nil, WithRetryPolicy(RetryPolicy{}), WithLogger(quietLogger()))
}

func TestMetadataResolver(t *testing.T) {
	t.Run("fetches interests only for configured categories", func(t *testing.T) {
		fake := newFake(t)
		r := NewMetadataResolver(newTestTransport(fake.URL()), "list1", quietLogger())

		meta, err := r.Resolve(context.Background(), []string{"vip"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := fake.Calls("GET /lists/list1/interest-categories/cat-vip/interests"); got != 1 {
			t.Errorf("expected 1 call for vip interests, got %d", got)
		}
		if got := fake.Calls("GET /lists/list1/interest-categories/cat-news/interests"); got != 0 {
			t.Errorf("newsletter interests must not be fetched, got %d calls", got)
		}

		if len(meta.InterestsFor("VIP")) != 2 {
			t.Errorf("expected 2 vip interests, got %v", meta.InterestsFor("VIP"))
		}
		if f, ok := meta.MergeField("address"); !ok || !f.Type.IsAddress() {
			t.Errorf("expected address merge field, got %+v", f)
		}
	})

	t.Run("unknown category fails before any push", func(t *testing.T) {
		fake := newFake(t)
		r := NewMetadataResolver(newTestTransport(fake.URL()), "list1", quietLogger())

		_, err := r.Resolve(context.Background(), []string{"vip", "Premium"})
		if !errors.Is(err, shared.ErrUnknownCategory) {
			t.Fatalf("expected ErrUnknownCategory, got %v", err)
		}
		if err.Error() != "invalid interest category name: 'Premium'" {
			t.Errorf("unexpected message %q", err.Error())
		}
	})

	t.Run("categories and merge fields are memoized", func(t *testing.T) {
		fake := newFake(t)
		r := NewMetadataResolver(newTestTransport(fake.URL()), "list1", quietLogger())
		ctx := context.Background()

		for range 3 {
			if _, err := r.ListCategories(ctx); err != nil {
				t.Fatal(err)
			}
			if _, err := r.ListMergeFields(ctx); err != nil {
				t.Fatal(err)
			}
		}

		if got := fake.Calls("GET /lists/list1/interest-categories"); got != 1 {
			t.Errorf("expected 1 categories call, got %d", got)
		}
		if got := fake.Calls("GET /lists/list1/merge-fields"); got != 1 {
			t.Errorf("expected 1 merge fields call, got %d", got)
		}
	})

	t.Run("paginates until total_items", func(t *testing.T) {
		fake := newFake(t)
		fake.MergeFields = nil
		for i := range 250 {
			fake.MergeFields = append(fake.MergeFields, models.MergeField{MergeID: i, Tag: fmt.Sprintf("F%d", i), Type: models.MergeText})
		}
		tr := newTestTransport(fake.URL())
		r := NewMetadataResolver(tr, "list1", quietLogger())

		fields, err := r.ListMergeFields(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(fields) != 250 {
			t.Errorf("expected 250 fields, got %d", len(fields))
		}
		if got := fake.Calls("GET /lists/list1/merge-fields"); got != 3 {
			t.Errorf("expected 3 pages, got %d", got)
		}
	})

	t.Run("no grouping columns skips categories", func(t *testing.T) {
		fake := newFake(t)
		r := NewMetadataResolver(newTestTransport(fake.URL()), "list1", quietLogger())

		if _, err := r.Resolve(context.Background(), nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := fake.Calls("GET /lists/list1/interest-categories"); got != 0 {
			t.Errorf("expected no category calls, got %d", got)
		}
	})

	t.Run("malformed page is a data error", func(t *testing.T) {
		rt := tu.NewSequenceRoundTripper(tu.Step{Status: 200, Body: `{"merge_fields": [`})
		tr := NewHTTPTransport("https://x", &http.Client{Transport: rt}, WithRetryPolicy(RetryPolicy{}), WithLogger(quietLogger()))

		_, err := NewMetadataResolver(tr, "list1", quietLogger()).ListMergeFields(context.Background())
		if !errors.Is(err, shared.ErrDataError) {
			t.Errorf("expected ErrDataError, got %v", err)
		}
	})
}

func TestListClient(t *testing.T) {
	t.Run("FindList", func(t *testing.T) {
		fake := newFake(t)
		info, err := NewListClient(newTestTransport(fake.URL()), "list1").FindList(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info.ID != "list1" || info.Name != "Fake List" {
			t.Errorf("unexpected list %+v", info)
		}
	})

	t.Run("unknown list", func(t *testing.T) {
		fake := newFake(t)
		_, err := NewListClient(newTestTransport(fake.URL()), "nope").FindList(context.Background())
		if !errors.Is(err, shared.ErrListNotFound) {
			t.Errorf("expected ErrListNotFound, got %v", err)
		}
	})

	t.Run("PushMembers", func(t *testing.T) {
		fake := newFake(t)
		c := NewListClient(newTestTransport(fake.URL()), "list1")
		req := models.BatchRequest{
			Members:        []models.Member{{EmailAddress: "a@example.com", Status: models.StatusSubscribed, MergeFields: map[string]any{"FNAME": "A"}}},
			UpdateExisting: true,
		}

		body, err := c.PushMembers(context.Background(), req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(body) == 0 {
			t.Error("expected response body")
		}

		batches := fake.Batches()
		if len(batches) != 1 || !batches[0].UpdateExisting || batches[0].Members[0].EmailAddress != "a@example.com" {
			t.Errorf("unexpected batches %+v", batches)
		}
	})

	t.Run("PushMembers to unknown list", func(t *testing.T) {
		fake := newFake(t)
		_, err := NewListClient(newTestTransport(fake.URL()), "gone").PushMembers(context.Background(), models.BatchRequest{})
		if !errors.Is(err, shared.ErrListNotFound) {
			t.Errorf("expected ErrListNotFound, got %v", err)
		}
	})
}
