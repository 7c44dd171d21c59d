// Package activity holds the activity log view: two independently fetched
// and independently sorted log streams behind a tab selector.
package activity

import (
	"context"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/bcnelson/autoreply-console/internal/domain"
	"github.com/bcnelson/autoreply-console/internal/gateway"
)

// MsgLoadFailed is the banner shown when a stream fails to load.
const MsgLoadFailed = "Failed to load logs"

// DefaultPageSize is the number of entries fetched per stream.
const DefaultPageSize = 50

// Fetcher is the subset of the backend client the view needs.
type Fetcher interface {
	ListCommentLogs(ctx context.Context, skip, limit int) (*domain.CommentLogPage, error)
	ListDMLogs(ctx context.Context, skip, limit int) (*domain.DMLogPage, error)
}

var _ Fetcher = (*gateway.Client)(nil)

// LoadResult carries the outcome of each stream of one Load.
type LoadResult struct {
	CommentsErr error
	DMsErr      error
}

// Err returns the first stream error, or nil when both succeeded.
func (r LoadResult) Err() error {
	if r.CommentsErr != nil {
		return r.CommentsErr
	}
	return r.DMsErr
}

// Unauthorized reports whether either stream hit a 401.
func (r LoadResult) Unauthorized() bool {
	return gateway.IsUnauthorized(r.CommentsErr) || gateway.IsUnauthorized(r.DMsErr)
}

// View is the state of the activity log page. Sorting and tab switching
// work on the fetched page and never refetch.
type View struct {
	mu sync.RWMutex

	comments      []*domain.CommentLog
	dms           []*domain.DMLog
	commentsTotal int
	dmsTotal      int

	commentSort Sort
	dmSort      Sort
	tab         Tab

	skip     int
	pageSize int
	loading  bool
	banner   string

	onChange func()
	logger   *log.Logger
}

// NewView returns a view on the comments tab, both streams sorted newest first.
func NewView(pageSize int) *View {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &View{
		commentSort: Sort{Key: ColTimestamp, Dir: Desc},
		dmSort:      Sort{Key: ColSentAt, Dir: Desc},
		tab:         TabComments,
		pageSize:    pageSize,
		logger:      log.Default().WithPrefix("activity"),
	}
}

// Load fetches both streams concurrently and returns once both settle.
// Each stream is stored as soon as it arrives; a failed stream keeps its
// previous rows.
func (v *View) Load(ctx context.Context, f Fetcher) LoadResult {
	v.mu.Lock()
	v.loading = true
	skip, limit := v.skip, v.pageSize
	v.mu.Unlock()

	var (
		wg  sync.WaitGroup
		res LoadResult
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		page, err := f.ListCommentLogs(ctx, skip, limit)
		res.CommentsErr = err
		v.mu.Lock()
		if err == nil {
			v.comments, v.commentsTotal = page.Comments, page.Total
		}
		v.mu.Unlock()
		v.settled("comments", err)
	}()
	go func() {
		defer wg.Done()
		page, err := f.ListDMLogs(ctx, skip, limit)
		res.DMsErr = err
		v.mu.Lock()
		if err == nil {
			v.dms, v.dmsTotal = page.DMs, page.Total
		}
		v.mu.Unlock()
		v.settled("dms", err)
	}()
	wg.Wait()

	v.mu.Lock()
	v.loading = false
	v.mu.Unlock()
	return res
}

func (v *View) settled(stream string, err error) {
	if err != nil {
		v.logger.Error("failed to fetch logs", "stream", stream, "error", err)
		if !gateway.IsUnauthorized(err) {
			v.mu.Lock()
			v.banner = MsgLoadFailed
			v.mu.Unlock()
		}
	}
	v.mu.RLock()
	onChange := v.onChange
	v.mu.RUnlock()
	if onChange != nil {
		onChange()
	}
}

// SetOnChange registers fn to run after each stream settles so partial
// data can be shown before the other stream finishes. nil unregisters.
func (v *View) SetOnChange(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onChange = fn
}

// Loading reports whether a Load is in flight.
func (v *View) Loading() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.loading
}

// SetTab switches the displayed stream. Sort state of both streams is kept.
func (v *View) SetTab(tab Tab) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tab = tab
}

// Tab returns the displayed stream.
func (v *View) Tab() Tab {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.tab
}

// ClickHeader applies a header click to the sort of tab's stream.
func (v *View) ClickHeader(tab Tab, key string) {
	col, ok := ColumnByKey(tab, key)
	if !ok {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if tab == TabDMs {
		v.dmSort = v.dmSort.Click(col)
	} else {
		v.commentSort = v.commentSort.Click(col)
	}
}

// SortOf returns the sort of tab's stream.
func (v *View) SortOf(tab Tab) Sort {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if tab == TabDMs {
		return v.dmSort
	}
	return v.commentSort
}

// Comments returns the comment stream in display order.
func (v *View) Comments() []*domain.CommentLog {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return SortComments(v.comments, v.commentSort)
}

// DMs returns the DM stream in display order.
func (v *View) DMs() []*domain.DMLog {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return SortDMs(v.dms, v.dmSort)
}

// Count returns the number of fetched entries of tab's stream.
func (v *View) Count(tab Tab) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if tab == TabDMs {
		return len(v.dms)
	}
	return len(v.comments)
}

// Total returns the backend total of tab's stream from the last fetch.
func (v *View) Total(tab Tab) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if tab == TabDMs {
		return v.dmsTotal
	}
	return v.commentsTotal
}

// Table renders tab's stream.
func (v *View) Table(tab Tab) Table {
	if tab == TabDMs {
		return DMTable(v.DMs(), v.SortOf(TabDMs))
	}
	return CommentTable(v.Comments(), v.SortOf(TabComments))
}

// Active renders the displayed stream.
func (v *View) Active() Table {
	return v.Table(v.Tab())
}

// Skip returns the offset used by the next Load.
func (v *View) Skip() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.skip
}

// PageSize returns the number of entries fetched per stream.
func (v *View) PageSize() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.pageSize
}

// SetSkip sets the offset used by the next Load.
func (v *View) SetSkip(skip int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.skip = max(skip, 0)
}

// HasOlder reports whether tab's stream has entries past the current page.
func (v *View) HasOlder(tab Tab) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	total, n := v.commentsTotal, len(v.comments)
	if tab == TabDMs {
		total, n = v.dmsTotal, len(v.dms)
	}
	return v.skip+n < total
}

// Banner returns the current error banner, or "".
func (v *View) Banner() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.banner
}

// DismissBanner clears the error banner.
func (v *View) DismissBanner() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.banner = ""
}

// Snapshot returns copies of both raw streams in fetch order.
func (v *View) Snapshot() ([]*domain.CommentLog, []*domain.DMLog) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.comments), slices.Clone(v.dms)
}
