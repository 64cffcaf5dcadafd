package types

import (
	"errors"
	"fmt"
	"math"
	"math/big"
)

var ErrDecimalOverflow = errors.New("sibuild: decimal overflow")

var pow10 = [...]int64{
	1, 10, 100, 1000, 10000, 100000, 1000000, 10000000, 100000000,
	1000000000, 10000000000, 100000000000, 1000000000000, 10000000000000,
	100000000000000, 1000000000000000, 10000000000000000, 100000000000000000,
	1000000000000000000,
}

// Decimal is a fixed-point value: V * 10^-Scale.
type Decimal struct {
	V     int64
	Scale int32
}

func NewDecimal64(v int64, scale int32) Decimal {
	return Decimal{V: v, Scale: scale}
}

// Rebase returns d expressed with the given scale. Reducing the scale
// truncates toward zero.
func (d Decimal) Rebase(scale int32) (Decimal, error) {
	if scale == d.Scale {
		return d, nil
	}
	if scale < 0 || d.Scale < 0 {
		return d, ErrDecimalOverflow
	}
	if scale > d.Scale {
		diff := scale - d.Scale
		if int(diff) >= len(pow10) {
			return d, ErrDecimalOverflow
		}
		f := pow10[diff]
		if d.V > math.MaxInt64/f || d.V < math.MinInt64/f {
			return d, ErrDecimalOverflow
		}
		return Decimal{V: d.V * f, Scale: scale}, nil
	}
	diff := d.Scale - scale
	if int(diff) >= len(pow10) {
		return Decimal{V: 0, Scale: scale}, nil
	}
	return Decimal{V: d.V / pow10[diff], Scale: scale}, nil
}

func (d Decimal) bigRat() *big.Rat {
	r := new(big.Rat).SetInt64(d.V)
	if d.Scale > 0 {
		den := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d.Scale)), nil)
		r.Quo(r, new(big.Rat).SetInt(den))
	}
	return r
}

func CompareDecimal(a, b Decimal) int {
	if a.Scale == b.Scale {
		switch {
		case a.V < b.V:
			return -1
		case a.V > b.V:
			return 1
		}
		return 0
	}
	return a.bigRat().Cmp(b.bigRat())
}

func (d Decimal) String() string {
	if d.Scale <= 0 {
		return fmt.Sprintf("%d", d.V)
	}
	return d.bigRat().FloatString(int(d.Scale))
}
