package spot

import (
	"bytes"
	"encoding/gob"

	"github.com/fermi-network/fermi/pkg/engine/orderbook"
	coreerrors "github.com/fermi-network/fermi/pkg/errors"
)

// marketSnapshot pairs one market's resting orders with its asset pair, the
// gob-serializable form of one books entry.
type marketSnapshot struct {
	Base, Quote uint64
	Orders      []*orderbook.Order
}

type catchupSnapshot struct {
	Markets []marketSnapshot
	Escrows map[uint64]*escrow
}

// CatchupState snapshots every market's resting orders and the live escrow
// ledger for distribution to catching-up validators.
func (c *Controller) CatchupState() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := catchupSnapshot{Escrows: c.escrows}
	for key, ob := range c.books {
		snap.Markets = append(snap.Markets, marketSnapshot{
			Base: key.base, Quote: key.quote, Orders: ob.Snapshot(),
		})
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, coreerrors.Wrap(coreerrors.Serialization, err)
	}
	return buf.Bytes(), nil
}

// LoadCatchupState restores controller state from a snapshot produced by
// CatchupState. The controller must be empty (a freshly constructed
// Controller, as during catch-up replay).
func (c *Controller) LoadCatchupState(data []byte) error {
	var snap catchupSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return coreerrors.Wrap(coreerrors.Deserialization, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if snap.Escrows == nil {
		snap.Escrows = make(map[uint64]*escrow)
	}
	c.escrows = snap.Escrows
	for _, m := range snap.Markets {
		ob := c.bookFor(m.Base, m.Quote)
		ob.Restore(m.Orders)
	}
	return nil
}
