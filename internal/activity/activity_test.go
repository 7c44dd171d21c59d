package activity

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcnelson/autoreply-console/internal/domain"
	"github.com/bcnelson/autoreply-console/internal/gateway"
)

type fakeFetcher struct {
	comments    []*domain.CommentLog
	dms         []*domain.DMLog
	commentsErr error
	dmsErr      error
	calls       atomic.Int32
	gotSkip     atomic.Int32
}

func (f *fakeFetcher) ListCommentLogs(ctx context.Context, skip, limit int) (*domain.CommentLogPage, error) {
	f.calls.Add(1)
	f.gotSkip.Store(int32(skip))
	if f.commentsErr != nil {
		return nil, f.commentsErr
	}
	return &domain.CommentLogPage{Comments: f.comments, Total: len(f.comments)}, nil
}

func (f *fakeFetcher) ListDMLogs(ctx context.Context, skip, limit int) (*domain.DMLogPage, error) {
	f.calls.Add(1)
	if f.dmsErr != nil {
		return nil, f.dmsErr
	}
	return &domain.DMLogPage{DMs: f.dms, Total: len(f.dms)}, nil
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func comments() []*domain.CommentLog {
	return []*domain.CommentLog{
		{ID: "1", CommenterUsername: "bob", CommentText: "price?", Timestamp: base.Add(time.Hour)},
		{ID: "2", CommenterUsername: "alice", CommentText: "cost?", Timestamp: base},
		{ID: "3", CommenterUsername: "carol", CommentText: "nice", Timestamp: base.Add(2 * time.Hour), ReplySent: true},
		{ID: "4", CommenterUsername: "alice", CommentText: "again", Timestamp: base.Add(3 * time.Hour)},
	}
}

func dms() []*domain.DMLog {
	return []*domain.DMLog{
		{ID: "d1", RecipientUsername: "zed", Message: "hello", Status: domain.DMStatusDelivered, SentAt: base},
		{ID: "d2", RecipientUsername: "amy", Message: "hi", Status: domain.DMStatusFailed, SentAt: base.Add(time.Hour)},
	}
}

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = id(it)
	}
	return out
}

func commentIDs(l []*domain.CommentLog) []string {
	return ids(l, func(c *domain.CommentLog) string { return c.ID })
}

func TestSortClick(t *testing.T) {
	ts, _ := ColumnByKey(TabComments, ColTimestamp)
	user, _ := ColumnByKey(TabComments, ColCommenter)
	text, _ := ColumnByKey(TabComments, ColCommentText)

	s := Sort{}
	s = s.Click(user)
	assert.Equal(t, Sort{Key: ColCommenter, Dir: Desc}, s)
	s = s.Click(user)
	assert.Equal(t, Sort{Key: ColCommenter, Dir: Asc}, s)
	s = s.Click(ts)
	assert.Equal(t, Sort{Key: ColTimestamp, Dir: Desc}, s, "new column always starts desc")
	s = s.Click(text)
	assert.Equal(t, Sort{Key: ColTimestamp, Dir: Desc}, s, "unsortable column is ignored")
}

func TestSortCommentsStable(t *testing.T) {
	logs := comments()

	byUser := SortComments(logs, Sort{Key: ColCommenter, Dir: Asc})
	assert.Equal(t, []string{"2", "4", "1", "3"}, commentIDs(byUser))

	byUserDesc := SortComments(logs, Sort{Key: ColCommenter, Dir: Desc})
	assert.Equal(t, []string{"3", "1", "2", "4"}, commentIDs(byUserDesc), "equal keys keep fetch order")

	byTime := SortComments(logs, Sort{Key: ColTimestamp, Dir: Desc})
	assert.Equal(t, []string{"4", "3", "1", "2"}, commentIDs(byTime))

	assert.Equal(t, []string{"1", "2", "3", "4"}, commentIDs(logs), "input untouched")
}

func TestTruncate(t *testing.T) {
	fifty := strings.Repeat("a", 50)
	assert.Equal(t, fifty, Truncate(fifty, CommentTextLimit))
	assert.Equal(t, fifty+Ellipsis, Truncate(fifty+"b", CommentTextLimit))

	forty := strings.Repeat("é", 40)
	assert.Equal(t, forty, Truncate(forty, DMMessageLimit))
	assert.Equal(t, forty+Ellipsis, Truncate(forty+"x", DMMessageLimit))
	assert.Equal(t, "", Truncate("", DMMessageLimit))
}

func TestTablesRender(t *testing.T) {
	long := strings.Repeat("x", 51)
	table := CommentTable([]*domain.CommentLog{{CommenterUsername: "bob", CommentText: long, ReplySent: true, Timestamp: base}}, Sort{Key: ColTimestamp, Dir: Desc})
	require.Len(t, table.Rows, 1)
	assert.False(t, table.Empty)
	assert.Equal(t, strings.Repeat("x", 50)+Ellipsis, table.Rows[0][2])
	assert.Equal(t, "✓ Replied", table.Rows[0][3])
	assert.Equal(t, "↓", table.Headers[0].Indicator)
	assert.Empty(t, table.Headers[1].Indicator)

	empty := DMTable(nil, Sort{Key: ColSentAt, Dir: Asc})
	assert.True(t, empty.Empty)
	assert.Empty(t, empty.Rows)
	assert.Equal(t, 4, empty.ColSpan)
	assert.Equal(t, "↑", empty.Headers[0].Indicator)
}

func TestViewLoadBothStreams(t *testing.T) {
	f := &fakeFetcher{comments: comments(), dms: dms()}
	v := NewView(0)

	var changes atomic.Int32
	v.SetOnChange(func() { changes.Add(1) })

	res := v.Load(context.Background(), f)
	require.NoError(t, res.Err())
	assert.False(t, v.Loading())
	assert.EqualValues(t, 2, changes.Load())
	assert.Equal(t, 4, v.Count(TabComments))
	assert.Equal(t, 2, v.Count(TabDMs))
	assert.Equal(t, DefaultPageSize, v.PageSize())
}

func TestViewOnChangeUnregisterDuringLoad(t *testing.T) {
	f := &fakeFetcher{comments: comments(), dms: dms()}
	v := NewView(50)

	var changes atomic.Int32
	v.SetOnChange(func() { changes.Add(1) })

	done := make(chan struct{})
	go func() {
		defer close(done)
		v.SetOnChange(nil)
	}()
	v.Load(context.Background(), f)
	<-done

	before := changes.Load()
	assert.LessOrEqual(t, before, int32(2))
	v.Load(context.Background(), f)
	assert.Equal(t, before, changes.Load(), "no callbacks after unregistering")
}

func TestViewPartialFailure(t *testing.T) {
	f := &fakeFetcher{comments: comments(), dmsErr: errors.New("timeout")}
	v := NewView(50)

	res := v.Load(context.Background(), f)
	assert.NoError(t, res.CommentsErr)
	assert.Error(t, res.DMsErr)
	assert.False(t, res.Unauthorized())
	assert.Equal(t, 4, v.Count(TabComments), "successful stream is shown")
	assert.True(t, v.Table(TabDMs).Empty)
	assert.Equal(t, MsgLoadFailed, v.Banner())
}

func TestViewUnauthorized(t *testing.T) {
	f := &fakeFetcher{commentsErr: gateway.ErrUnauthorized, dmsErr: gateway.ErrUnauthorized}
	v := NewView(50)
	res := v.Load(context.Background(), f)
	assert.True(t, res.Unauthorized())
	assert.Empty(t, v.Banner())
}

func TestViewSortAndTabsDoNotRefetch(t *testing.T) {
	f := &fakeFetcher{comments: comments(), dms: dms()}
	v := NewView(50)
	v.Load(context.Background(), f)
	require.EqualValues(t, 2, f.calls.Load())

	v.ClickHeader(TabDMs, ColRecipient)
	v.ClickHeader(TabDMs, ColRecipient)
	v.SetTab(TabDMs)
	assert.Equal(t, TabDMs, v.Tab())
	assert.Equal(t, Sort{Key: ColRecipient, Dir: Asc}, v.SortOf(TabDMs))
	assert.Equal(t, Sort{Key: ColTimestamp, Dir: Desc}, v.SortOf(TabComments), "other stream keeps its sort")
	assert.Equal(t, "amy", v.DMs()[0].RecipientUsername)

	v.SetTab(TabComments)
	assert.Equal(t, Sort{Key: ColRecipient, Dir: Asc}, v.SortOf(TabDMs))
	assert.Equal(t, []string{"4", "3", "1", "2"}, commentIDs(v.Comments()))
	assert.EqualValues(t, 2, f.calls.Load())

	v.ClickHeader(TabComments, "bogus")
	assert.Equal(t, Sort{Key: ColTimestamp, Dir: Desc}, v.SortOf(TabComments))
}

func TestViewPaging(t *testing.T) {
	f := &fakeFetcher{comments: comments()}
	v := NewView(2)
	v.SetSkip(-5)
	assert.Equal(t, 0, v.Skip())

	v.SetSkip(2)
	v.Load(context.Background(), f)
	assert.EqualValues(t, 2, f.gotSkip.Load())
	assert.False(t, v.HasOlder(TabComments))
	assert.Equal(t, 4, v.Total(TabComments))
}

func TestParseTab(t *testing.T) {
	assert.Equal(t, TabDMs, ParseTab("dms"))
	assert.Equal(t, TabComments, ParseTab("comments"))
	assert.Equal(t, TabComments, ParseTab(""))
}
