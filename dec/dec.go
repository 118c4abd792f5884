// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package dec implements the fixed point decimal used for exchange rates,
// delegation shares and fee fractions. Values carry 18 fractional digits
// and are non-negative.
package dec

import (
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/stakehub-labs/stakehub/bn"
)

// Scale is the number of fractional digits.
const Scale = 18

var scaleFactor = uint256.NewInt(1e18)

// Dec is a fixed point decimal with 18 fractional digits.
// The zero value means 0.
type Dec struct {
	v uint256.Int
}

// Zero returns 0.
func Zero() Dec { return Dec{} }

// One returns 1.
func One() Dec { return Dec{v: *scaleFactor} }

// FromRatio returns n/d. Panics if d is zero.
func FromRatio(n, d uint64) Dec {
	if d == 0 {
		panic("dec: zero denominator")
	}
	var out Dec
	out.v.SetUint64(n)
	out.v.Mul(&out.v, scaleFactor)
	out.v.Div(&out.v, uint256.NewInt(d))
	return out
}

// FromBps converts basis points to a fraction.
func FromBps(bps uint64) Dec {
	return FromRatio(bps, 10000)
}

// FromIntRatio returns n/d for amounts. Panics if d is zero.
func FromIntRatio(n, d bn.Int) Dec {
	if d.IsZero() {
		panic("dec: zero denominator")
	}
	v := new(big.Int).Mul(n.ToBig(), scaleFactor.ToBig())
	v.Div(v, d.ToBig())
	out, overflow := uint256.FromBig(v)
	if overflow {
		panic("dec: ratio overflows")
	}
	return Dec{v: *out}
}

// FromInt converts a whole amount to a decimal.
func FromInt(i bn.Int) Dec {
	v, overflow := uint256.FromBig(new(big.Int).Mul(i.ToBig(), scaleFactor.ToBig()))
	if overflow {
		panic("dec: amount overflows")
	}
	return Dec{v: *v}
}

// IsZero returns true for the 0 value.
func (d Dec) IsZero() bool { return d.v.IsZero() }

// Cmp compares d with other.
func (d Dec) Cmp(other Dec) int { return d.v.Cmp(&other.v) }

// Add returns d + other.
func (d Dec) Add(other Dec) Dec {
	var out Dec
	if _, overflow := out.v.AddOverflow(&d.v, &other.v); overflow {
		panic("dec: addition overflows")
	}
	return out
}

// Sub returns d - other. Panics if the result would be negative.
func (d Dec) Sub(other Dec) Dec {
	if d.v.Cmp(&other.v) < 0 {
		panic("dec: negative result")
	}
	var out Dec
	out.v.Sub(&d.v, &other.v)
	return out
}

// SubSaturate returns d - other, clamped at zero.
func (d Dec) SubSaturate(other Dec) Dec {
	if d.v.Cmp(&other.v) <= 0 {
		return Dec{}
	}
	var out Dec
	out.v.Sub(&d.v, &other.v)
	return out
}

// Mul returns d * other.
func (d Dec) Mul(other Dec) Dec {
	var out Dec
	if _, overflow := out.v.MulDivOverflow(&d.v, &other.v, scaleFactor); overflow {
		panic("dec: multiplication overflows")
	}
	return out
}

// Div returns d / other. Panics if other is zero.
func (d Dec) Div(other Dec) Dec {
	if other.v.IsZero() {
		panic("dec: division by zero")
	}
	var out Dec
	if _, overflow := out.v.MulDivOverflow(&d.v, scaleFactor, &other.v); overflow {
		panic("dec: quotient overflows")
	}
	return out
}

// MulInt returns floor(d * i) as an amount.
func (d Dec) MulInt(i bn.Int) bn.Int {
	v := new(big.Int).Mul(d.v.ToBig(), i.ToBig())
	return bn.FromBig(v.Div(v, scaleFactor.ToBig()))
}

// Floor returns the whole part of d as an amount.
func (d Dec) Floor() bn.Int {
	var out uint256.Int
	out.Div(&d.v, scaleFactor)
	return bn.FromBig(out.ToBig())
}

// String renders the decimal with trailing fractional zeros trimmed.
func (d Dec) String() string {
	var whole, frac uint256.Int
	whole.DivMod(&d.v, scaleFactor, &frac)
	if frac.IsZero() {
		return whole.Dec()
	}
	fracStr := fmt.Sprintf("%018s", frac.Dec())
	return whole.Dec() + "." + strings.TrimRight(fracStr, "0")
}

// Parse parses a decimal string like "1.5" or "0.007".
func Parse(s string) (Dec, error) {
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > Scale {
		return Dec{}, fmt.Errorf("dec: more than %d fractional digits in %q", Scale, s)
	}
	frac += strings.Repeat("0", Scale-len(frac))

	w, ok := new(big.Int).SetString(whole, 10)
	if !ok || w.Sign() < 0 {
		return Dec{}, fmt.Errorf("dec: invalid decimal %q", s)
	}
	f, ok := new(big.Int).SetString(frac, 10)
	if !ok {
		return Dec{}, fmt.Errorf("dec: invalid decimal %q", s)
	}
	w.Mul(w, scaleFactor.ToBig())
	w.Add(w, f)
	v, overflow := uint256.FromBig(w)
	if overflow {
		return Dec{}, fmt.Errorf("dec: decimal %q overflows", s)
	}
	return Dec{v: *v}, nil
}

// MustParse parses a decimal string, panicking on error.
func MustParse(s string) Dec {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// MarshalJSON implements json.Marshaler.
func (d Dec) MarshalJSON() ([]byte, error) {
	return []byte("\"" + d.String() + "\""), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Dec) UnmarshalJSON(data []byte) error {
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		data = data[1 : len(data)-1]
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// EncodeRLP implements rlp.Encoder.
func (d Dec) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, d.v.ToBig())
}

// DecodeRLP implements rlp.Decoder.
func (d *Dec) DecodeRLP(s *rlp.Stream) error {
	bi := new(big.Int)
	if err := s.Decode(bi); err != nil {
		return err
	}
	v, overflow := uint256.FromBig(bi)
	if overflow {
		return fmt.Errorf("dec: stored decimal overflows")
	}
	d.v = *v
	return nil
}

