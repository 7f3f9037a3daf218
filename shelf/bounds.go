package shelf

import "fmt"

// ChapterBounds turns chapter numbers given by user into 0-based inclusive
// range for publication with total chapters. Numbers are 1-based, negative
// ones count from the end (-1 is the last chapter), nil means not given.
// When start is not given reading continues after lastRead, unless end is
// before it, then range starts from the first chapter. Result may be empty
// (start > end) when there is nothing new to read.
func ChapterBounds(start, end *int, lastRead, total int) (int, int, error) {
	if total < 0 {
		return 0, 0, fmt.Errorf("negative number of chapters %d", total)
	}

	rectify := func(v int) int {
		if v < 0 {
			return max(v+total, 0)
		}
		return v - 1
	}
	read, last := rectify(lastRead), total-1

	switch {
	case start != nil && end != nil:
		return rectify(*start), rectify(*end), nil
	case start != nil:
		return rectify(*start), last, nil
	case end != nil:
		e := rectify(*end)
		if read > e {
			// backtracking
			return 0, e, nil
		}
		return read + 1, e, nil
	}
	return read + 1, last, nil
}
