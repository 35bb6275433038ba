package binaryparse

// layout is the plan for transferring one field at a given bit offset
// within the current byte.
type layout struct {
	size      int    // field bit width
	readBytes int    // bytes to touch
	skipBytes int    // bytes to advance the cursor
	shift     int    // right shift to align the value in the window
	mask      uint64 // value mask, (1<<size)-1
}

// plan computes the byte window, cursor advance, shift and mask for a
// field of the given bit width entering at offset (0..7). The trailing
// partial byte, if any, stays un-consumed: its low-order remainder
// belongs to the next field.
func plan(size, offset int) layout {
	readBytes := (size + offset + 7) / 8
	skipBytes := (size + offset) / 8
	return layout{
		size:      size,
		readBytes: readBytes,
		skipBytes: skipBytes,
		shift:     readBytes*8 - size - offset,
		mask:      maskFor(size),
	}
}

// maskFor returns the low-order mask of the given bit width.
func maskFor(size int) uint64 {
	if size >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(size)) - 1
}

// cycleFor returns the bit cycle of a sub-byte element width: the
// smallest repeat count that returns the running offset to its entry
// value, lcm(size, 8) / size.
func cycleFor(size int) int {
	return 8 / gcd(size%8, 8)
}

func gcd(a, b int) int {
	if a == 0 {
		return b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
