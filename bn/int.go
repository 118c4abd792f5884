// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bn

import (
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
)

var big0 = new(big.Int)

// Int wraps big.Int as a non-negative token amount.
// It can be used as a value without state sharing; the zero value means 0.
type Int struct {
	value *big.Int
}

// FromBig creates a bn.Int from big.Int.
func FromBig(bi *big.Int) Int {
	i := Int{}
	i.SetBig(bi)
	return i
}

// FromUint64 creates a bn.Int from a uint64 value.
func FromUint64(v uint64) Int {
	if v == 0 {
		return Int{}
	}
	return Int{value: new(big.Int).SetUint64(v)}
}

// ToBig convert to big.Int.
func (i Int) ToBig() *big.Int {
	if i.value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(i.value)
}

// Uint64 returns the uint64 representation. Truncates for values wider than 64 bits.
func (i Int) Uint64() uint64 {
	if i.value == nil {
		return 0
	}
	return i.value.Uint64()
}

// SetBig set big.Int.
func (i *Int) SetBig(bi *big.Int) {
	if bi.Sign() == 0 {
		i.value = nil
		return
	}
	i.value = new(big.Int).Set(bi)
}

// IsZero returns true if bn.Int presents a zero value.
func (i Int) IsZero() bool {
	return i.value == nil || i.value.Sign() == 0
}

// Sign returns the sign of the value.
func (i Int) Sign() int {
	if i.value == nil {
		return 0
	}
	return i.value.Sign()
}

// Cmp compares with another bn.Int.
// Returns:
//
//	-1 if i <  other
//	 0 if i == other
//	+1 if i >  other
func (i Int) Cmp(other Int) int {
	if i.value == nil {
		if other.value == nil {
			return 0
		}
		return -other.value.Sign()
	}

	if other.value == nil {
		return i.value.Sign()
	}
	return i.value.Cmp(other.value)
}

// Add returns i + other.
func (i Int) Add(other Int) Int {
	if other.IsZero() {
		return i
	}
	if i.IsZero() {
		return other
	}
	return Int{value: new(big.Int).Add(i.value, other.value)}
}

// Sub returns i - other. Panics if the result would be negative.
func (i Int) Sub(other Int) Int {
	if other.IsZero() {
		return i
	}
	v := new(big.Int).Sub(i.ToBig(), other.value)
	if v.Sign() < 0 {
		panic(fmt.Sprintf("bn: negative amount %v - %v", i, other))
	}
	return FromBig(v)
}

// SubSaturate returns i - other, clamped at zero.
func (i Int) SubSaturate(other Int) Int {
	if i.Cmp(other) <= 0 {
		return Int{}
	}
	if other.value == nil {
		return i
	}
	return Int{value: new(big.Int).Sub(i.value, other.value)}
}

// Mul returns i * other.
func (i Int) Mul(other Int) Int {
	if i.IsZero() || other.IsZero() {
		return Int{}
	}
	return Int{value: new(big.Int).Mul(i.value, other.value)}
}

// MulDiv returns i * num / denom with full intermediate precision,
// truncating the result. Panics on zero denom.
func (i Int) MulDiv(num, denom Int) Int {
	if denom.IsZero() {
		panic("bn: division by zero")
	}
	if i.IsZero() || num.IsZero() {
		return Int{}
	}
	v := new(big.Int).Mul(i.value, num.value)
	return FromBig(v.Div(v, denom.value))
}

// Div returns i / denom, truncating. Panics on zero denom.
func (i Int) Div(denom Int) Int {
	if denom.IsZero() {
		panic("bn: division by zero")
	}
	if i.IsZero() {
		return Int{}
	}
	return FromBig(new(big.Int).Div(i.value, denom.value))
}

// Min returns the smaller of a and b.
func Min(a, b Int) Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// EncodeRLP implements rlp.Encoder.
func (i Int) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, i.ToBig())
}

// DecodeRLP implements rlp.Decoder.
func (i *Int) DecodeRLP(s *rlp.Stream) error {
	bi := new(big.Int)
	if err := s.Decode(bi); err != nil {
		return err
	}
	i.SetBig(bi)
	return nil
}

// String implements Stringer.
func (i Int) String() string {
	if i.value == nil {
		return big0.String()
	}
	return i.value.String()
}

// Format see big.Int.Format.
func (i Int) Format(s fmt.State, ch rune) {
	if i.value == nil {
		big0.Format(s, ch)
		return
	}
	i.value.Format(s, ch)
}

// MarshalJSON implements the json.Marshaler interface.
// Amounts marshal as decimal strings to survive 53-bit JSON readers.
func (i Int) MarshalJSON() ([]byte, error) {
	return []byte("\"" + i.String() + "\""), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (i *Int) UnmarshalJSON(text []byte) error {
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		text = text[1 : len(text)-1]
	}
	bi, ok := new(big.Int).SetString(string(text), 10)
	if !ok {
		return fmt.Errorf("bn: invalid amount %q", text)
	}
	i.SetBig(bi)
	return nil
}
