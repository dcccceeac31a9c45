package domain

import (
	"math"
	"math/bits"
	"strconv"
)

type AccountID string

type TokenID string

// Amount is a token quantity or a weighted vote amount.
type Amount uint64

const MaxAmount = Amount(math.MaxUint64)

func (a Amount) String() string {
	return strconv.FormatUint(uint64(a), 10)
}

func ParseAmount(s string) (Amount, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return Amount(v), nil
}

// CheckedAdd returns a+b or ErrAmountOverflow.
func CheckedAdd(a, b Amount) (Amount, error) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 {
		return 0, ErrAmountOverflow
	}
	return Amount(sum), nil
}

// CheckedMul returns a*b or ErrAmountOverflow.
func CheckedMul(a, b Amount) (Amount, error) {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 {
		return 0, ErrAmountOverflow
	}
	return Amount(lo), nil
}

// SaturatingAdd clamps at MaxAmount.
func SaturatingAdd(a, b Amount) Amount {
	sum, err := CheckedAdd(a, b)
	if err != nil {
		return MaxAmount
	}
	return sum
}

// SaturatingMul clamps at MaxAmount.
func SaturatingMul(a, b Amount) Amount {
	product, err := CheckedMul(a, b)
	if err != nil {
		return MaxAmount
	}
	return product
}
