// Package artifact serializes expanded CIDR blocks into the two files
// CountryBlock publishes: the regex list and the host list.
package artifact

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ripeart/CountryBlock/cidr"
)

// Kind names one of the published artifacts.
type Kind string

const (
	KindRegex Kind = "regex"
	KindHosts Kind = "hosts"
)

// ErrHostLimit is returned when the usable hosts of a list exceed the
// configured cap.
var ErrHostLimit = errors.New("host count exceeds limit")

// Artifact is a unit of synchronized content: where it goes, what it holds
// and the change description recorded with it.
type Artifact struct {
	Kind    Kind
	Path    string
	Content []byte
	Message string
}

// String implements fmt.Stringer for log output.
func (a Artifact) String() string {
	return fmt.Sprintf("%s(%s, %d bytes)", a.Kind, a.Path, len(a.Content))
}

// Fragments returns the regex fragment of every block, in input order.
func Fragments(blocks []cidr.Block) []string {
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.Regex())
	}
	return out
}

// BuildRegex returns the regex artifact: the combined alternation of all
// blocks, width-split into chunks of at most width characters, one chunk
// per line.
func BuildRegex(blocks []cidr.Block, width int) ([]byte, error) {
	chunks, err := cidr.Split(Fragments(blocks), width)
	if err != nil {
		return nil, fmt.Errorf("splitting regex: %w", err)
	}
	return []byte(strings.Join(chunks, "\n")), nil
}

// BuildHosts returns the host artifact: every usable address of every
// block in input order, one per line. A non-zero maxHosts caps the total
// and is checked before anything is enumerated.
func BuildHosts(blocks []cidr.Block, maxHosts uint64) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteHosts(&buf, blocks, maxHosts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteHosts streams the host artifact to w.
func WriteHosts(w io.Writer, blocks []cidr.Block, maxHosts uint64) error {
	if total := cidr.TotalHosts(blocks); maxHosts > 0 && total > maxHosts {
		return fmt.Errorf("%d hosts, limit %d: %w", total, maxHosts, ErrHostLimit)
	}

	bw := bufio.NewWriter(w)
	first := true
	for _, b := range blocks {
		for addr := range b.Hosts() {
			if !first {
				if err := bw.WriteByte('\n'); err != nil {
					return fmt.Errorf("writing hosts: %w", err)
				}
			}
			first = false
			if _, err := bw.WriteString(addr.String()); err != nil {
				return fmt.Errorf("writing hosts: %w", err)
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing hosts: %w", err)
	}
	return nil
}
