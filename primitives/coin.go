package primitives

import "errors"

// ErrInsufficientFunds is returned by checked Coin arithmetic that would
// make a balance negative or overflow.
var ErrInsufficientFunds = errors.New("primitives: insufficient funds")

// Coin is an unsigned balance, denominated in the smallest indivisible unit
// of the network's currency.
type Coin uint64

// Add returns c+other, or ErrInsufficientFunds on overflow.
func (c Coin) Add(other Coin) (Coin, error) {
	sum := c + other
	if sum < c {
		return 0, ErrInsufficientFunds
	}
	return sum, nil
}

// Sub returns c-other, or ErrInsufficientFunds if other > c.
func (c Coin) Sub(other Coin) (Coin, error) {
	if other > c {
		return 0, ErrInsufficientFunds
	}
	return c - other, nil
}

// CheckedAdd sums a list of coins, failing on the first overflow.
func CheckedAdd(coins ...Coin) (Coin, error) {
	var total Coin
	var err error
	for _, c := range coins {
		total, err = total.Add(c)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
