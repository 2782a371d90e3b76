package ranges

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRangeEndAndEmpty(t *testing.T) {
	r := Range{Pos: 10, Size: 5}
	assert.Equal(t, int64(15), r.End())
	assert.False(t, r.IsEmpty())
	assert.True(t, Range{Pos: 10, Size: 0}.IsEmpty())
}

func TestRangeIntersection(t *testing.T) {
	a := Range{Pos: 0, Size: 10}
	b := Range{Pos: 5, Size: 10}
	assert.Equal(t, Range{Pos: 5, Size: 5}, a.Intersection(b))

	c := Range{Pos: 20, Size: 5}
	assert.True(t, a.Intersection(c).IsEmpty())
}

func TestRangesInsertMergesAdjacentAndOverlapping(t *testing.T) {
	var rs Ranges
	rs.Insert(Range{Pos: 0, Size: 10})
	rs.Insert(Range{Pos: 10, Size: 10}) // touching -> merge
	assert.Equal(t, Ranges{{Pos: 0, Size: 20}}, rs)

	rs.Insert(Range{Pos: 30, Size: 10}) // disjoint -> new entry
	assert.Equal(t, Ranges{{Pos: 0, Size: 20}, {Pos: 30, Size: 10}}, rs)

	rs.Insert(Range{Pos: 15, Size: 20}) // overlaps both -> merges all three
	assert.Equal(t, Ranges{{Pos: 0, Size: 40}}, rs)
}

func TestRangesInsertIsIdempotent(t *testing.T) {
	var rs Ranges
	rs.Insert(Range{Pos: 0, Size: 10})
	rs.Insert(Range{Pos: 0, Size: 10})
	assert.Equal(t, Ranges{{Pos: 0, Size: 10}}, rs)
}

func TestRangesFindGapsFullyUncovered(t *testing.T) {
	var rs Ranges
	gaps := rs.FindGaps(Range{Pos: 0, Size: 100})
	assert.Equal(t, Ranges{{Pos: 0, Size: 100}}, gaps)
}

func TestRangesFindGapsFullyCovered(t *testing.T) {
	var rs Ranges
	rs.Insert(Range{Pos: 0, Size: 100})
	assert.Empty(t, rs.FindGaps(Range{Pos: 10, Size: 20}))
	assert.True(t, rs.Covers(Range{Pos: 10, Size: 20}))
}

func TestRangesFindGapsPartial(t *testing.T) {
	var rs Ranges
	rs.Insert(Range{Pos: 10, Size: 10}) // [10,20)
	rs.Insert(Range{Pos: 40, Size: 10}) // [40,50)

	gaps := rs.FindGaps(Range{Pos: 0, Size: 60})
	assert.Equal(t, Ranges{
		{Pos: 0, Size: 10},
		{Pos: 20, Size: 20},
		{Pos: 50, Size: 10},
	}, gaps)
	assert.False(t, rs.Covers(Range{Pos: 0, Size: 60}))
}

func TestRangesFindGapsQueryEntirelyBeforeOrAfter(t *testing.T) {
	var rs Ranges
	rs.Insert(Range{Pos: 100, Size: 10})

	assert.Equal(t, Ranges{{Pos: 0, Size: 10}}, rs.FindGaps(Range{Pos: 0, Size: 10}))
	assert.Equal(t, Ranges{{Pos: 200, Size: 10}}, rs.FindGaps(Range{Pos: 200, Size: 10}))
}

func TestRangesFindGapsEmptyQuery(t *testing.T) {
	var rs Ranges
	assert.Empty(t, rs.FindGaps(Range{Pos: 0, Size: 0}))
}
