package cidr

import (
	"iter"
	"net/netip"
	"strconv"
	"strings"
)

// DefaultMaxWidth is the chunk width accepted by the downstream filter.
const DefaultMaxWidth = 1000

// ExpandToRegex parses s and returns its regex fragment.
func ExpandToRegex(s string) (string, error) {
	b, err := ParseBlock(s)
	if err != nil {
		return "", err
	}
	return b.Regex(), nil
}

// ExpandToHosts parses s and returns its usable hosts.
func ExpandToHosts(s string) (iter.Seq[netip.Addr], error) {
	b, err := ParseBlock(s)
	if err != nil {
		return nil, err
	}
	return b.Hosts(), nil
}

// Regex returns a pattern matching the dotted-decimal form of every address
// in the block and of no other address. The pattern is anchored with \b on
// both ends so it never matches inside a longer numeral.
//
// Each octet contributes its own range: octets left of the prefix boundary
// are literal, the boundary octet spans [lo,hi] and the remaining octets span
// [0,255].
func (b Block) Regex() string {
	lo, hi := b.First().As4(), b.Last().As4()

	var sb strings.Builder
	sb.WriteString(`\b`)
	for i := range 4 {
		if i > 0 {
			sb.WriteString(`\.`)
		}
		sb.WriteString(octetPattern(int(lo[i]), int(hi[i])))
	}
	sb.WriteString(`\b`)
	return sb.String()
}

// octetPattern matches the decimal numbers lo..hi without leading zeros.
// Single-digit bounds become a character class; wider ranges become a
// non-capturing group of digit-aligned alternatives.
func octetPattern(lo, hi int) string {
	if lo == hi {
		return strconv.Itoa(lo)
	}
	alts := numericRange(lo, hi)
	if len(alts) == 1 {
		return alts[0]
	}
	return "(?:" + strings.Join(alts, "|") + ")"
}

// numericRange splits lo..hi into runs with the same number of digits and
// expands each run.
func numericRange(lo, hi int) []string {
	var out []string
	for lo <= hi {
		end := min(hi, maxWithDigits(len(strconv.Itoa(lo))))
		out = append(out, sameLength(strconv.Itoa(lo), strconv.Itoa(end))...)
		lo = end + 1
	}
	return out
}

// sameLength expands the range a..b where both have the same number of
// digits and a <= b.
func sameLength(a, b string) []string {
	if a == b {
		return []string{a}
	}
	if len(a) == 1 {
		return []string{digitClass(a[0], b[0])}
	}
	if a[0] == b[0] {
		return prefixed(a[:1], sameLength(a[1:], b[1:]))
	}

	rest := len(a) - 1
	var out, upper []string
	from, to := a[0], b[0]

	if a[1:] != strings.Repeat("0", rest) {
		out = append(out, prefixed(a[:1], sameLength(a[1:], strings.Repeat("9", rest)))...)
		from++
	}
	if b[1:] != strings.Repeat("9", rest) {
		upper = prefixed(b[:1], sameLength(strings.Repeat("0", rest), b[1:]))
		to--
	}
	if from <= to {
		out = append(out, digitClass(from, to)+strings.Repeat("[0-9]", rest))
	}
	return append(out, upper...)
}

func digitClass(from, to byte) string {
	if from == to {
		return string(from)
	}
	return "[" + string(from) + "-" + string(to) + "]"
}

func prefixed(p string, parts []string) []string {
	for i := range parts {
		parts[i] = p + parts[i]
	}
	return parts
}

func maxWithDigits(n int) int {
	m := 9
	for range n - 1 {
		m = m*10 + 9
	}
	return m
}

// Combine joins fragments into a single alternation.
func Combine(fragments []string) string {
	return strings.Join(fragments, "|")
}
