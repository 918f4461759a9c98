// Package bytesize parses the human-readable sizes used in configuration
// (storage.wal_segment_size) and on the command line (--block-size).
package bytesize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ByteSize is a size in bytes.
type ByteSize uint64

const (
	B   ByteSize = 1
	KiB ByteSize = 1 << 10
	MiB ByteSize = 1 << 20
	GiB ByteSize = 1 << 30

	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
)

// Suffixes are matched case-insensitively, longest first, so "mib" is not
// read as "m" followed by garbage.
var units = []struct {
	suffix string
	size   ByteSize
}{
	{"kib", KiB}, {"mib", MiB}, {"gib", GiB},
	{"ki", KiB}, {"mi", MiB}, {"gi", GiB},
	{"kb", KB}, {"mb", MB}, {"gb", GB},
	{"k", KB}, {"m", MB}, {"g", GB},
	{"b", B},
}

// ParseByteSize parses sizes such as "4096", "16Mi", "8MiB", "1.5GiB" or
// "500MB". Binary suffixes (Ki, Mi, Gi) are powers of 1024, decimal ones
// (K, M, G) powers of 1000.
func ParseByteSize(s string) (ByteSize, error) {
	str := strings.ToLower(strings.TrimSpace(s))
	if str == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	mult := B
	for _, u := range units {
		if strings.HasSuffix(str, u.suffix) {
			str = strings.TrimSpace(strings.TrimSuffix(str, u.suffix))
			mult = u.size
			break
		}
	}

	if n, err := strconv.ParseUint(str, 10, 64); err == nil {
		if n > math.MaxUint64/uint64(mult) {
			return 0, fmt.Errorf("byte size %q overflows", s)
		}
		return ByteSize(n) * mult, nil
	}

	f, err := strconv.ParseFloat(str, 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}
	v := f * float64(mult)
	if v >= math.MaxUint64 {
		return 0, fmt.Errorf("byte size %q overflows", s)
	}
	return ByteSize(v), nil
}

// UnmarshalText lets a ByteSize be decoded straight from text.
func (b *ByteSize) UnmarshalText(text []byte) error {
	v, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// MarshalText writes the exact size, so a written config reads back the
// same value.
func (b ByteSize) MarshalText() ([]byte, error) {
	for _, u := range []struct {
		suffix string
		size   ByteSize
	}{{"GiB", GiB}, {"MiB", MiB}, {"KiB", KiB}} {
		if b >= u.size && b%u.size == 0 {
			return []byte(strconv.FormatUint(uint64(b/u.size), 10) + u.suffix), nil
		}
	}
	return []byte(strconv.FormatUint(uint64(b), 10)), nil
}

// String renders the size with two decimals in the largest binary unit.
func (b ByteSize) String() string {
	switch {
	case b >= GiB:
		return fmt.Sprintf("%.2fGiB", float64(b)/float64(GiB))
	case b >= MiB:
		return fmt.Sprintf("%.2fMiB", float64(b)/float64(MiB))
	case b >= KiB:
		return fmt.Sprintf("%.2fKiB", float64(b)/float64(KiB))
	default:
		return fmt.Sprintf("%dB", uint64(b))
	}
}

func (b ByteSize) Uint64() uint64 { return uint64(b) }

// Int64 saturates at math.MaxInt64.
func (b ByteSize) Int64() int64 {
	if uint64(b) > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(b)
}
