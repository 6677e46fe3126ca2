package cidr

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// maxLineBytes bounds a single input line. Real lines are under 20 bytes;
// anything longer is reported and skipped.
const maxLineBytes = 64 * 1024

// longLinePreview is how much of an oversized line is kept for reporting.
const longLinePreview = 32

// ParseList reads one CIDR block per line. Blank lines and lines starting
// with '#' or ';' are ignored. A malformed or oversized line is reported as
// an *InvalidRangeError and skipped so one bad entry never blanks out the
// rest of the list. The returned error is reserved for failures reading r.
func ParseList(r io.Reader) ([]Block, []*InvalidRangeError, error) {
	var (
		blocks  []Block
		skipped []*InvalidRangeError
		lineNo  int
	)

	br := bufio.NewReader(r)
	for {
		raw, tooLong, err := readLine(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return blocks, skipped, fmt.Errorf("reading CIDR list at line %d: %w", lineNo+1, err)
		}
		lineNo++

		if tooLong {
			preview := raw
			if len(preview) > longLinePreview {
				preview = preview[:longLinePreview] + "..."
			}
			skipped = append(skipped, &InvalidRangeError{Line: lineNo, Input: preview, Reason: "line too long"})
			continue
		}

		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		b, err := ParseBlock(line)
		if err != nil {
			var ire *InvalidRangeError
			if !errors.As(err, &ire) {
				return blocks, skipped, err
			}
			ire.Line = lineNo
			skipped = append(skipped, ire)
			continue
		}
		blocks = append(blocks, b)
	}
	return blocks, skipped, nil
}

// readLine returns the next line without its terminator. Lines longer than
// maxLineBytes are drained and returned truncated, flagged by the second
// result. io.EOF is returned only when no bytes remain.
func readLine(br *bufio.Reader) (string, bool, error) {
	var (
		buf     []byte
		tooLong bool
	)
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			if err == io.EOF && (len(buf) > 0 || tooLong) {
				return string(buf), tooLong, nil
			}
			return string(buf), tooLong, err
		}
		if !tooLong {
			if len(buf)+len(chunk) > maxLineBytes {
				tooLong = true
				buf = append(buf, chunk[:min(len(chunk), longLinePreview)]...)
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !isPrefix {
			return string(buf), tooLong, nil
		}
	}
}

// TotalHosts sums HostCount over blocks.
func TotalHosts(blocks []Block) uint64 {
	var n uint64
	for _, b := range blocks {
		n += b.HostCount()
	}
	return n
}
