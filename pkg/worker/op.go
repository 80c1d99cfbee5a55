package worker

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// ErrUnknownOp is returned for an operation outside the defined set.
var ErrUnknownOp = errors.New("unknown operation")

// Op is the operation a worker applies to each of its regions.
type Op int

const (
	// OpMax reports the largest value of the region.
	OpMax Op = iota + 1
	// OpAverage reports the arithmetic mean of the region.
	OpAverage
	// OpSort sorts the region ascending in place.
	OpSort
	// OpDouble multiplies every value by two in place.
	OpDouble
	// OpZeroNegatives replaces every negative value with zero in place.
	OpZeroNegatives
	// OpReverse reverses the order of the region in place.
	OpReverse
)

// Ops lists every defined operation.
var Ops = []Op{OpMax, OpAverage, OpSort, OpDouble, OpZeroNegatives, OpReverse}

// String returns the operation's name as accepted by ParseOp.
func (o Op) String() string {
	switch o {
	case OpMax:
		return "max"
	case OpAverage:
		return "average"
	case OpSort:
		return "sort"
	case OpDouble:
		return "double"
	case OpZeroNegatives:
		return "zero-negatives"
	case OpReverse:
		return "reverse"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Code returns the single-letter code of the operation.
func (o Op) Code() byte {
	switch o {
	case OpMax:
		return 'M'
	case OpAverage:
		return 'P'
	case OpSort:
		return 'O'
	case OpDouble:
		return 'D'
	case OpZeroNegatives:
		return 'N'
	case OpReverse:
		return 'I'
	default:
		return '?'
	}
}

// Valid reports whether o is one of the defined operations.
func (o Op) Valid() bool {
	return o >= OpMax && o <= OpReverse
}

// Mutates reports whether the operation writes to the region.
func (o Op) Mutates() bool {
	switch o {
	case OpSort, OpDouble, OpZeroNegatives, OpReverse:
		return true
	default:
		return false
	}
}

// ParseOp accepts an operation name or its single-letter code.
func ParseOp(s string) (Op, error) {
	s = strings.TrimSpace(s)
	for _, op := range Ops {
		if strings.EqualFold(s, op.String()) || s == string(op.Code()) {
			return op, nil
		}
	}
	switch strings.ToLower(s) {
	case "avg", "mean":
		return OpAverage, nil
	case "zero", "zero_negatives":
		return OpZeroNegatives, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOp, s)
}

// Set implements pflag.Value.
func (o *Op) Set(s string) error {
	op, err := ParseOp(s)
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// Type implements pflag.Value.
func (o *Op) Type() string { return "op" }

// MarshalText implements encoding.TextMarshaler.
func (o Op) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOp, int(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Op) UnmarshalText(text []byte) error {
	return o.Set(string(text))
}

// Result is what one operation produced on one region. Max and Mean are only
// meaningful for OpMax and OpAverage.
type Result struct {
	Op     Op
	Region int
	Max    int32
	Mean   float64
}

// Apply runs op over values in place. Values must be the complete contents of
// one region and the caller must hold that region's lock.
func Apply(op Op, region int, values []int32) (Result, error) {
	res := Result{Op: op, Region: region}
	switch op {
	case OpMax:
		if len(values) > 0 {
			res.Max = slices.Max(values)
		}
	case OpAverage:
		if len(values) > 0 {
			xs := make([]float64, len(values))
			for i, v := range values {
				xs[i] = float64(v)
			}
			res.Mean = stat.Mean(xs, nil)
		}
	case OpSort:
		slices.Sort(values)
	case OpDouble:
		for i := range values {
			values[i] *= 2
		}
	case OpZeroNegatives:
		for i, v := range values {
			if v < 0 {
				values[i] = 0
			}
		}
	case OpReverse:
		slices.Reverse(values)
	default:
		return res, fmt.Errorf("%w: %d", ErrUnknownOp, int(op))
	}
	return res, nil
}
