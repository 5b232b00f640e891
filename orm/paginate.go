package orm

import (
	"context"

	"github.com/syssam/vorm"
)

type page struct {
	n, size int
}

// Page limits the query to page n (from 1) of size rows and enables the
// result cache. A size of zero or less selects the model's PerPage;
// sizes are capped by the model's MaxPerPage.
func (q *Query) Page(n, size int) *Query {
	if q.err != nil {
		return q
	}
	cp := max(n, 1)
	pp := size
	if pp <= 0 {
		pp = q.model.perPage
	}
	pp = min(max(pp, 1), q.model.maxPerPage)
	c := q.clone()
	c.limit, c.hasLimit = pp, true
	c.offset = pp * (cp - 1)
	c.page = &page{n: cp, size: pp}
	c.cstate = cachePending
	return c
}

// CurrentPage returns the page number given to Page.
func (q *Query) CurrentPage() (int, error) {
	if q.page == nil {
		return 0, vorm.ErrNoPage
	}
	return q.page.n, nil
}

// PerPage returns the page size chosen by Page.
func (q *Query) PerPage() (int, error) {
	if q.page == nil {
		return 0, vorm.ErrNoPage
	}
	return q.page.size, nil
}

// Pagination describes the position of a page within the full result.
type Pagination struct {
	CurrentPage int
	PerPage     int
	TotalCount  int64
}

// Pagination counts the rows matched by the query, ignoring LIMIT and
// OFFSET, and returns the page position.
//
//	p, err := db.Query(orders).Page(3, 10).Pagination(ctx)
//	p.LastPage() // 4 for 39 rows
func (q *Query) Pagination(ctx context.Context) (Pagination, error) {
	if q.page == nil {
		return Pagination{}, vorm.ErrNoPage
	}
	tc, err := q.TotalCount(ctx)
	if err != nil {
		return Pagination{}, err
	}
	return Pagination{CurrentPage: q.page.n, PerPage: q.page.size, TotalCount: tc}, nil
}

// LastPage returns the number of the last page, 1 when there are no rows.
func (p Pagination) LastPage() int {
	if p.TotalCount == 0 {
		return 1
	}
	return int((p.TotalCount-1)/int64(p.PerPage)) + 1
}

// FirstOfPage returns the 1-based position of the first row of the page,
// or 0 when there are no rows.
func (p Pagination) FirstOfPage() int64 {
	if p.TotalCount == 0 {
		return 0
	}
	return int64(p.PerPage)*int64(p.CurrentPage-1) + 1
}

// LastOfPage returns the position of the last row of the page.
func (p Pagination) LastOfPage() int64 {
	if p.IsLastPage() {
		return p.TotalCount
	}
	return int64(p.PerPage) * int64(p.CurrentPage)
}

// IsFirstPage reports whether the page is the first.
func (p Pagination) IsFirstPage() bool { return p.CurrentPage == 1 }

// IsLastPage reports whether the page is the last or beyond it.
func (p Pagination) IsLastPage() bool { return p.CurrentPage >= p.LastPage() }

// Pages returns a window of n page numbers around the current page,
// shifted to stay within [1, LastPage]. n defaults to 10.
func (p Pagination) Pages(n int) []int {
	if n <= 0 {
		n = 10
	}
	cp, lp := p.CurrentPage, p.LastPage()
	i := cp - (n-1)/2
	j := cp + n/2
	if i < 1 {
		j += 1 - i
		i = 1
	}
	if j > lp {
		i -= j - lp
		j = lp
	}
	i = max(i, 1)
	ps := make([]int, 0, max(j-i+1, 0))
	for k := i; k <= j; k++ {
		ps = append(ps, k)
	}
	return ps
}
