package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// CachedSlotStore fronts a SlotStore with a cache of slots already seen as
// reserved. Reservation is one-way, so a cached entry never goes stale.
// Unreserved slots are never cached; ReserveSlot on them always reaches the
// underlying store.
type CachedSlotStore struct {
	next        SlotStore
	reserved    *lru.Cache[uuid.UUID, Slot]
	group       singleflight.Group
	loadTimeout time.Duration
}

const defaultLoadTimeout = 5 * time.Second

func NewCachedSlotStore(next SlotStore, size int) (*CachedSlotStore, error) {
	cache, err := lru.New[uuid.UUID, Slot](size)
	if err != nil {
		return nil, err
	}
	return &CachedSlotStore{next: next, reserved: cache, loadTimeout: defaultLoadTimeout}, nil
}

func (c *CachedSlotStore) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	if s, ok := c.reserved.Get(id); ok {
		return &s, nil
	}

	// The shared load must not inherit one caller's cancellation; each caller
	// waits only as long as its own context allows.
	ch := c.group.DoChan(id.String(), func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()
		return c.next.GetSlot(loadCtx, id)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	v := res.Val

	// Shared between coalesced callers; hand out copies.
	s := *v.(*Slot)
	if s.Reserved {
		c.reserved.Add(id, s)
	}
	return &s, nil
}

func (c *CachedSlotStore) ReserveSlot(ctx context.Context, id uuid.UUID) error {
	if c.reserved.Contains(id) {
		return ErrSlotAlreadyReserved
	}

	return c.next.ReserveSlot(ctx, id)
}

func (c *CachedSlotStore) Len() int {
	return c.reserved.Len()
}
