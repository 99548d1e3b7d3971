// Package cluster provides run ownership on top of the storage
// contract. A lease is a fenced record under lease/<runID>: at most one
// live owner per run, enforced by conditional writes rather than any
// node-to-node protocol, so any KV backend shared by the engines is
// enough to coordinate a fleet.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/petrijr/arbor/internal/persistence"
	"github.com/petrijr/arbor/pkg/api"
)

// Lease is the durable ownership record for a run. Generation increases
// on every acquisition, so a holder that lost and re-took the lease can
// be told apart from one that held it throughout.
type Lease struct {
	RunID      string    `json:"runId"`
	Owner      string    `json:"owner"`
	Generation int64     `json:"generation"`
	ExpiresAt  time.Time `json:"expiresAt"`

	version int64
}

// Coordinator acquires, renews and releases run leases.
type Coordinator struct {
	kv    persistence.KV
	owner string
	ttl   time.Duration
	now   func() time.Time
}

// NewCoordinator creates a coordinator for one engine identity. The ttl
// bounds how long a crashed owner blocks takeover.
func NewCoordinator(kv persistence.KV, owner string, ttl time.Duration) *Coordinator {
	return &Coordinator{kv: kv, owner: owner, ttl: ttl, now: time.Now}
}

// Owner returns the identity this coordinator acquires leases as.
func (c *Coordinator) Owner() string { return c.owner }

// TTL returns the lease duration.
func (c *Coordinator) TTL() time.Duration { return c.ttl }

// Acquire takes the lease for a run. It succeeds when no lease exists,
// when the existing lease has expired, or when this owner already holds
// it (re-acquisition bumps the generation). A live lease held by
// another owner returns ErrAlreadyOwned.
func (c *Coordinator) Acquire(ctx context.Context, runID string) (*Lease, error) {
	key := persistence.LeaseKey(runID)
	for {
		data, ver, ok, err := c.kv.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read lease for %s: %w", runID, err)
		}

		lease := &Lease{RunID: runID, Owner: c.owner, Generation: 1}
		if ok {
			var cur Lease
			if err := persistence.Decode(data, &cur); err != nil {
				return nil, err
			}
			if cur.Owner != c.owner && c.now().Before(cur.ExpiresAt) {
				return nil, fmt.Errorf("%w: run %s held by %s until %s",
					api.ErrAlreadyOwned, runID, cur.Owner, cur.ExpiresAt.Format(time.RFC3339))
			}
			lease.Generation = cur.Generation + 1
		}
		lease.ExpiresAt = c.now().Add(c.ttl)

		encoded, err := persistence.Encode(lease)
		if err != nil {
			return nil, err
		}
		var newVer int64
		if ok {
			newVer, err = c.kv.PutIfVersion(ctx, key, encoded, ver)
		} else {
			newVer, err = c.kv.PutIfAbsent(ctx, key, encoded)
		}
		if err != nil {
			if errors.Is(err, persistence.ErrVersionConflict) {
				// Raced another acquirer; re-read and retry.
				continue
			}
			return nil, fmt.Errorf("acquire lease for %s: %w", runID, err)
		}
		lease.version = newVer
		return lease, nil
	}
}

// Renew extends the lease. It fails with ErrLeaseExpired when the
// record was taken over or changed underneath us, in which case the
// holder must stop driving the run immediately.
func (c *Coordinator) Renew(ctx context.Context, lease *Lease) error {
	lease.ExpiresAt = c.now().Add(c.ttl)
	encoded, err := persistence.Encode(lease)
	if err != nil {
		return err
	}
	newVer, err := c.kv.PutIfVersion(ctx, persistence.LeaseKey(lease.RunID), encoded, lease.version)
	if err != nil {
		if errors.Is(err, persistence.ErrVersionConflict) {
			return fmt.Errorf("%w: run %s", api.ErrLeaseExpired, lease.RunID)
		}
		return fmt.Errorf("renew lease for %s: %w", lease.RunID, err)
	}
	lease.version = newVer
	return nil
}

// Release deletes the lease so another engine can take the run without
// waiting out the TTL. Safe to call after the lease was already lost;
// a lease now owned by someone else is left alone.
func (c *Coordinator) Release(ctx context.Context, lease *Lease) error {
	key := persistence.LeaseKey(lease.RunID)
	data, _, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read lease for %s: %w", lease.RunID, err)
	}
	if !ok {
		return nil
	}
	var cur Lease
	if err := persistence.Decode(data, &cur); err != nil {
		return err
	}
	if cur.Owner != c.owner || cur.Generation != lease.Generation {
		return nil
	}
	return c.kv.Delete(ctx, key)
}

// KeepAlive renews the lease every ttl/3 until ctx is done. The
// returned context is cancelled the moment a renewal fails, so the
// scheduler can abandon the run before another owner starts it. Call
// the returned stop function to end renewal and wait for the goroutine.
func (c *Coordinator) KeepAlive(ctx context.Context, lease *Lease) (context.Context, func()) {
	leaseCtx, lost := context.WithCancelCause(ctx)
	renewCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-renewCtx.Done():
				return
			case <-ticker.C:
				if err := c.Renew(renewCtx, lease); err != nil {
					lost(err)
					return
				}
			}
		}
	}()

	return leaseCtx, func() {
		stop()
		<-done
		lost(nil)
	}
}
