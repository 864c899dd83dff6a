
package postgres

import (
	"github.com/oklog/ulid/v2"
)

// ULIDGenerator issues ULIDs for accounts, balances, and pending transfers.
// The ids sort by creation time, which keeps index pages in insert order.
type ULIDGenerator struct{}

func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{}
}

func (g *ULIDGenerator) Generate() string {
	return ulid.Make().String()
}
