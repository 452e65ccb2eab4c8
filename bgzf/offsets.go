package bgzf

// sortedSetDifference returns the elements of a that are not present in
// b. Both a and b must already be sorted ascending; the result is sorted
// ascending. Grounded on the source library's
// algorithm/set_difference_inplace.hh, used here to remove a worker's
// just-released block offsets from the reader's set of still-active
// (in-flight) offsets.
func sortedSetDifference(a, b []uint64) []uint64 {
	out := make([]uint64, 0, len(a))
	i, j := 0, 0
	for i < len(a) {
		switch {
		case j >= len(b) || a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] == b[j]:
			i++
			j++
		default:
			j++
		}
	}
	return out
}

// sortedSetUnion merges two sorted ascending slices into one sorted
// ascending slice with duplicates removed. Grounded on the source
// library's algorithm/sorted_set_union.hh.
func sortedSetUnion(a, b []uint64) []uint64 {
	out := make([]uint64, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
