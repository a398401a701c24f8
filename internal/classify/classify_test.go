package classify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billingsync/internal/log"
	"billingsync/internal/sheets/memory"
)

func staticLookup(m map[string]Match) LookupFunc {
	return func(_ context.Context, name string) (Match, error) {
		return m[name], nil
	}
}

func TestClassify_SingleMatch(t *testing.T) {
	c := New(staticLookup(map[string]Match{"Riverside FC": {Label: "Club"}}))

	res, err := c.Classify(context.Background(), " Riverside FC ")
	require.NoError(t, err)
	assert.Equal(t, Result{Label: "Club", Found: true}, res)
}

func TestClassify_AmbiguousUsesTieBreak(t *testing.T) {
	lookup := staticLookup(map[string]Match{"Riverside": {Candidates: []Candidate{
		{Key: "y", Label: "Academy"},
		{Key: "x", Label: "Club"},
	}}})

	tests := []struct {
		name string
		tb   TieBreak
		want string
	}{
		{"first key", FirstKey, "Club"},
		{"first declared", FirstDeclared, "Academy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, run := log.NewRun(nil)
			c := New(lookup, WithTieBreak(tt.tb), WithLogger(logger))

			for i := 0; i < 3; i++ {
				res, err := c.Classify(context.Background(), "Riverside")
				require.NoError(t, err)
				assert.Equal(t, tt.want, res.Label)
				assert.True(t, res.Ambiguous)
			}
			require.Equal(t, 3, run.Warnings())
			assert.Contains(t, run.Lines()[0], `candidates="x, y"`)
		})
	}
}

func TestClassify_NoMatchIsAbsent(t *testing.T) {
	logger, run := log.NewRun(nil)
	c := New(staticLookup(nil), WithLogger(logger))

	res, err := c.Classify(context.Background(), "Unknown Org")
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Empty(t, res.Label)
	assert.Contains(t, run.String(), "INFO No classification found")
}

func TestClassify_BlankNameSkipsLookup(t *testing.T) {
	called := false
	c := New(LookupFunc(func(context.Context, string) (Match, error) {
		called = true
		return Match{}, nil
	}))
	res, err := c.Classify(context.Background(), "   ")
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.False(t, called)
}

func TestClassify_LookupError(t *testing.T) {
	boom := errors.New("boom")
	c := New(LookupFunc(func(context.Context, string) (Match, error) { return Match{}, boom }))
	_, err := c.Classify(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}

func TestClassifier_UsingRedirectsLogs(t *testing.T) {
	base, baseRun := log.NewRun(nil)
	scoped, scopedRun := log.NewRun(nil)
	c := New(staticLookup(nil), WithLogger(base))

	_, err := c.Using(scoped).Classify(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, baseRun.Lines())
	assert.Len(t, scopedRun.Lines(), 1)
}

func TestParseTieBreak(t *testing.T) {
	_, err := ParseTieBreak("first-key")
	require.NoError(t, err)
	_, err = ParseTieBreak("")
	require.NoError(t, err)
	_, err = ParseTieBreak("first-declared")
	require.NoError(t, err)
	_, err = ParseTieBreak("random")
	assert.Error(t, err)
}

func newLookupWorkbook() *memory.Workbook {
	wb := memory.New()
	wb.Put("Lookup", [][]any{
		{"Fragment", "Type"},
		{"riverside", "Club"},
		{"Academy", "Academy"},
		{"United", "Club"},
		{"Utd", "Club"},
		{"", "Ignored"},
		{"Orphan"},
	})
	return wb
}

func TestSheetLookup(t *testing.T) {
	ctx := context.Background()
	l := NewSheetLookup(newLookupWorkbook(), "Lookup", 0)

	m, err := l.Lookup(ctx, "Riverside FC")
	require.NoError(t, err)
	assert.Equal(t, Match{Label: "Club"}, m)

	m, err = l.Lookup(ctx, "RIVERSIDE ACADEMY")
	require.NoError(t, err)
	assert.Equal(t, []Candidate{{Key: "riverside", Label: "Club"}, {Key: "Academy", Label: "Academy"}}, m.Candidates)

	// Name contained in the fragment also matches.
	m, err = l.Lookup(ctx, "Acad")
	require.NoError(t, err)
	assert.Equal(t, "Academy", m.Label)

	m, err = l.Lookup(ctx, "Hillside Rovers")
	require.NoError(t, err)
	assert.Equal(t, Match{}, m)
}

func TestSheetLookup_SameLabelIsNotAmbiguous(t *testing.T) {
	l := NewSheetLookup(newLookupWorkbook(), "Lookup", 0)
	m, err := l.Lookup(context.Background(), "Riverside United")
	require.NoError(t, err)
	assert.Equal(t, Match{Label: "Club"}, m)
}

func TestSheetLookup_ReloadsAfterTTL(t *testing.T) {
	ctx := context.Background()
	wb := newLookupWorkbook()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	l := NewSheetLookup(wb, "Lookup", time.Minute)
	l.now = func() time.Time { return now }

	_, err := l.Lookup(ctx, "Riverside")
	require.NoError(t, err)

	wb.Put("Lookup", [][]any{{"Fragment", "Type"}, {"riverside", "Academy"}})
	m, _ := l.Lookup(ctx, "Riverside")
	assert.Equal(t, "Club", m.Label, "table is cached within ttl")

	now = now.Add(2 * time.Minute)
	m, _ = l.Lookup(ctx, "Riverside")
	assert.Equal(t, "Academy", m.Label)
}

func TestSheetLookup_MissingSheet(t *testing.T) {
	l := NewSheetLookup(memory.New(), "Lookup", 0)
	_, err := l.Lookup(context.Background(), "x")
	assert.Error(t, err)
}

func TestCachedLookup(t *testing.T) {
	var calls atomic.Int32
	next := LookupFunc(func(_ context.Context, name string) (Match, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return Match{Label: "Club"}, nil
	})
	c := NewCachedLookup(next, 10, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := c.Lookup(context.Background(), "Riverside FC")
			assert.NoError(t, err)
			assert.Equal(t, "Club", m.Label)
		}()
	}
	wg.Wait()

	_, err := c.Lookup(context.Background(), "riverside fc")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, c.Stats().Size)
}

func TestCachedLookup_DoesNotCacheErrors(t *testing.T) {
	var calls int
	c := NewCachedLookup(LookupFunc(func(context.Context, string) (Match, error) {
		calls++
		return Match{}, errors.New("unavailable")
	}), 10, time.Minute)

	_, err := c.Lookup(context.Background(), "a")
	require.Error(t, err)
	_, err = c.Lookup(context.Background(), "a")
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}
