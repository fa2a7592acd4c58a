package dispatch

// Batches splits items into contiguous, order-preserving slices of at most
// size elements. The last slice may be shorter. A size below 1 is treated
// as 1 and an empty input yields no batches. The returned slices share the
// input's backing array.
func Batches[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	if len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end:end])
	}
	return out
}
