package lock

import (
	"sync"
	"time"

	"github.com/jvs-project/taskstate/pkg/logging"
	"github.com/jvs-project/taskstate/pkg/model"
)

// Keeper renews a held lease in the background until stopped.
type Keeper struct {
	m     *Manager
	id    model.TaskID
	nonce string

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu   sync.Mutex
	lost error
}

// Keep renews the lease every third of the lease TTL until Stop is called.
// A failed renewal ends renewal and is reported by Held.
func (m *Manager) Keep(id model.TaskID, holderNonce string) *Keeper {
	k := &Keeper{
		m:     m,
		id:    id,
		nonce: holderNonce,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	interval := m.policy.LeaseTTL / 3
	if interval <= 0 {
		close(k.done)
		return k
	}
	go k.run(interval)
	return k
}

func (k *Keeper) run(interval time.Duration) {
	defer close(k.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-k.stop:
			return
		case <-ticker.C:
			if _, err := k.m.Renew(k.id, k.nonce); err != nil {
				k.mu.Lock()
				k.lost = err
				k.mu.Unlock()
				logging.Warn("task lease lost", map[string]any{"task": string(k.id), "error": err.Error()})
				return
			}
		}
	}
}

// Held returns E_LOCK_NOT_HELD if a renewal failed or the lease is no longer
// held with this keeper's nonce.
func (k *Keeper) Held() error {
	k.mu.Lock()
	lost := k.lost
	k.mu.Unlock()
	if lost != nil {
		return lost
	}
	return k.m.Check(k.id, k.nonce)
}

// Stop ends renewal and waits for the renewal goroutine. It may be called
// more than once.
func (k *Keeper) Stop() {
	k.stopOnce.Do(func() { close(k.stop) })
	<-k.done
}
