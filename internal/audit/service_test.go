package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	rows       []TimelineRow
	lastLimit  int
	lastOffset int
}

func (s *stubRepo) TimelineWindow(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	s.lastLimit = limit
	s.lastOffset = offset
	if len(s.rows) > limit {
		return s.rows[:limit], nil
	}
	return s.rows, nil
}

func makeRows(n int) []TimelineRow {
	rows := make([]TimelineRow, n)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := range rows {
		rows[i] = TimelineRow{
			At:       base.Add(-time.Duration(i) * time.Minute),
			ActorID:  int64(i + 1),
			Actor:    "Actor",
			Action:   "article.created",
			Entity:   "article",
			EntityID: "1",
		}
	}
	return rows
}

func TestTimelineDefaultsAndHasNext(t *testing.T) {
	repo := &stubRepo{rows: makeRows(21)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	require.Equal(t, 21, repo.lastLimit)
	require.Equal(t, 0, repo.lastOffset)
	require.Len(t, result.Rows, 20)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.NextPage)
	require.Zero(t, result.Paging.PrevPage)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &stubRepo{rows: makeRows(10)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, maxPageSize+1, repo.lastLimit)
	require.Equal(t, 2*maxPageSize, repo.lastOffset)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.PrevPage)
}

func TestExportCSV(t *testing.T) {
	rows := makeRows(2)
	payload, err := NewExporter().WriteCSV(rows)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "at,actor_id,actor,action,entity,entity_id,meta", lines[0])
	require.Contains(t, lines[1], "article.created")
}
