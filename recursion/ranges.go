package recursion

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// SizeRange is an inclusive range of trace degree bits a table's chains are
// preprocessed for.
type SizeRange struct {
	MinBits int
	MaxBits int
}

// ParseSizeRange parses the "N..M" notation, e.g. "4..18".
func ParseSizeRange(s string) (SizeRange, error) {
	lo, hi, ok := strings.Cut(s, "..")
	if !ok {
		return SizeRange{}, fmt.Errorf("recursion: size range %q is not of the form N..M", s)
	}
	min, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return SizeRange{}, fmt.Errorf("recursion: size range %q: %w", s, err)
	}
	max, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return SizeRange{}, fmt.Errorf("recursion: size range %q: %w", s, err)
	}
	r := SizeRange{MinBits: min, MaxBits: max}
	if err := r.Validate(); err != nil {
		return SizeRange{}, err
	}
	return r, nil
}

// Validate checks the range is well-formed.
func (r SizeRange) Validate() error {
	if r.MinBits < 1 || r.MaxBits < r.MinBits {
		return fmt.Errorf("recursion: invalid size range %s", r)
	}
	return nil
}

// Contains reports whether the range covers the given degree.
func (r SizeRange) Contains(bits int) bool {
	return bits >= r.MinBits && bits <= r.MaxBits
}

// Len is the number of sizes in the range.
func (r SizeRange) Len() int { return r.MaxBits - r.MinBits + 1 }

func (r SizeRange) String() string {
	return fmt.Sprintf("%d..%d", r.MinBits, r.MaxBits)
}

// SizeRangeEnvVar names the environment variable holding a table's
// preprocessed size range, e.g. SQUARE_CIRCUIT_SIZE for a table named
// "square".
func SizeRangeEnvVar(table string) string {
	return strings.ToUpper(table) + "_CIRCUIT_SIZE"
}

// SizeRangesFromEnv reads each table's size range from its environment
// variable, falling back to def where unset.
func SizeRangesFromEnv(tables []string, def SizeRange) ([]SizeRange, error) {
	out := make([]SizeRange, len(tables))
	for i, name := range tables {
		s, ok := os.LookupEnv(SizeRangeEnvVar(name))
		if !ok {
			out[i] = def
			continue
		}
		r, err := ParseSizeRange(s)
		if err != nil {
			return nil, fmt.Errorf("recursion: %s: %w", SizeRangeEnvVar(name), err)
		}
		out[i] = r
	}
	return out, nil
}
