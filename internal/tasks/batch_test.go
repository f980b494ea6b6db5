package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/desertthunder/listsync/internal/models"
	"github.com/desertthunder/listsync/internal/shared"
)

// recordingPusher records every request and answers with every member created.
type recordingPusher struct {
	requests []models.BatchRequest
	err      error
}

func (p *recordingPusher) PushMembers(ctx context.Context, req models.BatchRequest) ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.requests = append(p.requests, req)
	return json.Marshal(models.BatchResponse{TotalCreated: len(req.Members)})
}

// slowPusher takes a fixed time per push and records when each push started and ended.
type slowPusher struct {
	took   time.Duration
	starts []time.Time
	ends   []time.Time
}

func (p *slowPusher) PushMembers(ctx context.Context, req models.BatchRequest) ([]byte, error) {
	p.starts = append(p.starts, time.Now())
	time.Sleep(p.took)
	p.ends = append(p.ends, time.Now())
	return json.Marshal(models.BatchResponse{TotalCreated: len(req.Members)})
}

type staticMetadata struct {
	meta  *models.Metadata
	err   error
	calls int
}

func (s *staticMetadata) Resolve(ctx context.Context, groupingColumns []string) (*models.Metadata, error) {
	s.calls++
	return s.meta, s.err
}

func emailRows(emails ...string) []models.Row {
	rows := make([]models.Row, len(emails))
	for i, e := range emails {
		rows[i] = row("email", e, "fname", fmt.Sprintf("F%d", i), "lname", "L")
	}
	return rows
}

func TestPartition(t *testing.T) {
	key := func(r models.Row) string { return r.Text("email") }

	t.Run("keeps first occurrence and original order", func(t *testing.T) {
		rows := emailRows("a", "b", "a", "c", "b", "a", "A")
		unique, dups := Partition(rows, key)

		var got []string
		for _, r := range unique {
			got = append(got, r.Text("email"))
		}
		if fmt.Sprint(got) != "[a b c A]" {
			t.Errorf("unexpected unique order %v", got)
		}

		got = nil
		for _, r := range dups {
			got = append(got, r.Text("email"))
		}
		if fmt.Sprint(got) != "[a b a]" {
			t.Errorf("unexpected duplicate order %v", got)
		}
		if unique[0].Text("fname") != "F0" || dups[0].Text("fname") != "F2" {
			t.Error("expected first occurrence in unique and later one in duplicates")
		}
	})

	t.Run("property: sizes add up and unique keys are distinct", func(t *testing.T) {
		batches := [][]string{
			{},
			{"x"},
			{"x", "x", "x"},
			{"a", "b", "c", "d"},
			{"a", "b", "a", "b", "c", "a", "d", "d"},
		}
		for _, emails := range batches {
			rows := emailRows(emails...)
			unique, dups := Partition(rows, key)
			if len(unique)+len(dups) != len(rows) {
				t.Errorf("%v: %d + %d != %d", emails, len(unique), len(dups), len(rows))
			}
			seen := map[string]bool{}
			for _, r := range unique {
				if seen[r.Text("email")] {
					t.Errorf("%v: duplicate key in unique", emails)
				}
				seen[r.Text("email")] = true
			}
		}
	})
}

func newAssembler(pusher Pusher, meta MetadataSource, max int, events *[]PushEvent) *BatchAssembler {
	return NewBatchAssembler(AssemblerConfig{
		Schema:     models.NewSchema("email", "fname", "lname"),
		Transform:  testOptions(),
		MaxRecords: max,
		Pusher:     pusher,
		Metadata:   meta,
		Aggregator: NewReportAggregator("run", "list", false, quietLogger()),
		Logger:     quietLogger(),
		OnPush: func(ev PushEvent) {
			if events != nil {
				*events = append(*events, ev)
			}
		},
	})
}

func TestBatchAssembler(t *testing.T) {
	ctx := context.Background()

	t.Run("flushes at max size and on finish", func(t *testing.T) {
		pusher := &recordingPusher{}
		meta := &staticMetadata{meta: testMetadata()}
		a := newAssembler(pusher, meta, 2, nil)

		for _, r := range emailRows("a", "b", "c") {
			if err := a.Buffer(ctx, r); err != nil {
				t.Fatal(err)
			}
		}
		if len(pusher.requests) != 1 || a.State() != StateFilling {
			t.Fatalf("expected one flush, got %d (state %s)", len(pusher.requests), a.State())
		}

		report, err := a.Finish(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(pusher.requests) != 2 || a.State() != StateDone {
			t.Errorf("expected residual flush, got %d requests", len(pusher.requests))
		}
		if report.TotalBuffered != 3 || report.TotalCreated != 3 {
			t.Errorf("unexpected report %+v", report)
		}
		if meta.calls != 1 {
			t.Errorf("metadata must be resolved once, got %d", meta.calls)
		}
	})

	t.Run("duplicates pushed individually after the unique batch", func(t *testing.T) {
		pusher := &recordingPusher{}
		var events []PushEvent
		a := newAssembler(pusher, &staticMetadata{meta: testMetadata()}, 10, &events)

		for _, r := range emailRows("a", "b", "a", "a") {
			a.Buffer(ctx, r)
		}
		if _, err := a.Finish(ctx); err != nil {
			t.Fatal(err)
		}

		if len(pusher.requests) != 3 {
			t.Fatalf("expected 3 pushes, got %d", len(pusher.requests))
		}
		if len(pusher.requests[0].Members) != 2 {
			t.Errorf("expected unique batch of 2, got %d", len(pusher.requests[0].Members))
		}
		for _, req := range pusher.requests[1:] {
			if len(req.Members) != 1 || req.Members[0].EmailAddress != "a" {
				t.Errorf("expected singleton for a, got %+v", req.Members)
			}
		}
		if events[0].Duplicate || !events[1].Duplicate || !events[2].Duplicate {
			t.Errorf("unexpected duplicate flags %+v", events)
		}
		if pusher.requests[1].Members[0].MergeFields["FNAME"] != "F2" || pusher.requests[2].Members[0].MergeFields["FNAME"] != "F3" {
			t.Error("duplicates must keep their original relative order")
		}
	})

	t.Run("empty stream pushes nothing", func(t *testing.T) {
		pusher := &recordingPusher{}
		meta := &staticMetadata{meta: testMetadata()}
		a := newAssembler(pusher, meta, 10, nil)

		report, err := a.Finish(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(pusher.requests) != 0 || report.TotalBuffered != 0 {
			t.Errorf("expected no pushes, got %d", len(pusher.requests))
		}
	})

	t.Run("metadata error aborts before pushing", func(t *testing.T) {
		pusher := &recordingPusher{}
		a := newAssembler(pusher, &staticMetadata{err: shared.ErrUnknownCategory}, 1, nil)

		err := a.Buffer(ctx, emailRows("a")[0])
		if !errors.Is(err, shared.ErrUnknownCategory) {
			t.Fatalf("expected ErrUnknownCategory, got %v", err)
		}
		if len(pusher.requests) != 0 {
			t.Error("nothing should be pushed")
		}
	})

	t.Run("push error is fatal", func(t *testing.T) {
		pusher := &recordingPusher{err: shared.ErrRetriesExhausted}
		a := newAssembler(pusher, &staticMetadata{meta: testMetadata()}, 1, nil)

		if err := a.Buffer(ctx, emailRows("a")[0]); !errors.Is(err, shared.ErrRetriesExhausted) {
			t.Errorf("expected ErrRetriesExhausted, got %v", err)
		}
	})

	t.Run("buffer after finish", func(t *testing.T) {
		a := newAssembler(&recordingPusher{}, &staticMetadata{meta: testMetadata()}, 10, nil)
		a.Finish(ctx)
		if err := a.Buffer(ctx, emailRows("a")[0]); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestBatchAssemblerPacing(t *testing.T) {
	pusher := &slowPusher{took: 60 * time.Millisecond}
	a := NewBatchAssembler(AssemblerConfig{
		Schema:     models.NewSchema("email", "fname", "lname"),
		Transform:  testOptions(),
		MaxRecords: 10,
		Pusher:     pusher,
		Metadata:   &staticMetadata{meta: testMetadata()},
		Aggregator: NewReportAggregator("run", "list", false, quietLogger()),
		Pacer:      NewPacer(50 * time.Millisecond),
		Logger:     quietLogger(),
	})

	for _, r := range emailRows("a", "b", "a") {
		if err := a.Buffer(context.Background(), r); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := a.Finish(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(pusher.starts) != 2 {
		t.Fatalf("expected batch and duplicate push, got %d", len(pusher.starts))
	}
	if gap := pusher.starts[1].Sub(pusher.ends[0]); gap < 40*time.Millisecond {
		t.Errorf("duplicate push started %v after the batch finished", gap)
	}
}

func TestPacer(t *testing.T) {
	ctx := context.Background()

	t.Run("zero delay never waits", func(t *testing.T) {
		p := NewPacer(0)
		start := time.Now()
		for range 100 {
			if err := p.Wait(ctx); err != nil {
				t.Fatal(err)
			}
		}
		if time.Since(start) > time.Second {
			t.Error("zero delay pacer should not block")
		}
	})

	t.Run("spaces pushes after the first", func(t *testing.T) {
		p := NewPacer(30 * time.Millisecond)
		start := time.Now()
		for range 3 {
			if err := p.Wait(ctx); err != nil {
				t.Fatal(err)
			}
		}
		if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
			t.Errorf("expected at least two delays, got %v", elapsed)
		}
	})

	t.Run("measures the delay from the end of a push", func(t *testing.T) {
		p := NewPacer(50 * time.Millisecond)
		if err := p.Wait(ctx); err != nil {
			t.Fatal(err)
		}
		time.Sleep(80 * time.Millisecond)
		p.Done()

		end := time.Now()
		if err := p.Wait(ctx); err != nil {
			t.Fatal(err)
		}
		if gap := time.Since(end); gap < 40*time.Millisecond {
			t.Errorf("expected a full delay after the push, got %v", gap)
		}
	})

	t.Run("respects cancellation", func(t *testing.T) {
		p := NewPacer(time.Hour)
		p.Wait(ctx)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if err := p.Wait(cctx); err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}
