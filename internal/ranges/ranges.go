// Package ranges implements a disjoint, sorted, merge-adjacent set of
// half-open byte intervals [Pos, Pos+Size). It is the cached-interval-set
// primitive StreamingStore uses to decide which sub-ranges of a read still
// need a remote fetch (spec.md §3 "the set of intervals is canonical
// (disjoint, sorted, merged)").
//
// Grounded on rclone's lib/ranges (only the test file was retrieved into
// the pack; the contract below — Insert with adjacent-merge, Covers and
// FindGaps — is reconstructed from that test-visible behavior).
package ranges

import "sort"

// Range is a half-open byte interval [Pos, Pos+Size).
type Range struct {
	Pos  int64
	Size int64
}

// End returns the exclusive end offset of r.
func (r Range) End() int64 {
	return r.Pos + r.Size
}

// IsEmpty reports whether r covers no bytes.
func (r Range) IsEmpty() bool {
	return r.Size <= 0
}

// Intersection returns the overlap of r and s, or the zero Range with
// IsEmpty() true if they don't overlap.
func (r Range) Intersection(s Range) Range {
	start := max64(r.Pos, s.Pos)
	end := min64(r.End(), s.End())
	if end <= start {
		return Range{}
	}
	return Range{Pos: start, Size: end - start}
}

// Ranges is a canonical (disjoint, sorted by Pos, merged where adjacent)
// set of byte ranges.
type Ranges []Range

// Insert adds r to the set, merging with any overlapping or touching
// existing ranges. Once a byte offset is present it is never removed by
// Insert (spec.md: "once a byte offset is marked downloaded it is never
// re-fetched").
func (rs *Ranges) Insert(r Range) {
	if r.IsEmpty() {
		return
	}
	merged := append(Ranges(nil), *rs...)
	merged = append(merged, r)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Pos < merged[j].Pos })

	out := merged[:0]
	for _, cur := range merged {
		if len(out) > 0 {
			last := &out[len(out)-1]
			if cur.Pos <= last.End() {
				if cur.End() > last.End() {
					last.Size = cur.End() - last.Pos
				}
				continue
			}
		}
		out = append(out, cur)
	}
	*rs = out
}

// Covers reports whether the whole of r is already present in the set.
func (rs Ranges) Covers(r Range) bool {
	return len(rs.FindGaps(r)) == 0
}

// FindGaps returns the sub-ranges of r that are NOT yet covered by rs, in
// ascending order. An empty result means r is fully covered.
func (rs Ranges) FindGaps(r Range) Ranges {
	if r.IsEmpty() {
		return nil
	}
	var gaps Ranges
	cursor := r.Pos
	end := r.End()
	for _, cur := range rs {
		if cur.End() <= cursor {
			continue
		}
		if cur.Pos >= end {
			break
		}
		if cur.Pos > cursor {
			gaps = append(gaps, Range{Pos: cursor, Size: cur.Pos - cursor})
		}
		if cur.End() > cursor {
			cursor = cur.End()
		}
		if cursor >= end {
			break
		}
	}
	if cursor < end {
		gaps = append(gaps, Range{Pos: cursor, Size: end - cursor})
	}
	return gaps
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
