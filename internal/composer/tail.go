package composer

import "strings"

// tailBuffer keeps the last capacity bytes of line-oriented output.
type tailBuffer struct {
	capacity int
	lines    []string
	size     int
}

func newTailBuffer(capacity int) *tailBuffer {
	return &tailBuffer{capacity: capacity}
}

// WriteLine appends a line, evicting from the front once over capacity.
func (b *tailBuffer) WriteLine(line string) {
	b.lines = append(b.lines, line)
	b.size += len(line) + 1
	for b.size > b.capacity && len(b.lines) > 1 {
		b.size -= len(b.lines[0]) + 1
		b.lines = b.lines[1:]
	}
}

// String returns the buffered tail.
func (b *tailBuffer) String() string {
	return strings.Join(b.lines, "\n")
}

// lastLines returns at most n trailing lines of s.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
