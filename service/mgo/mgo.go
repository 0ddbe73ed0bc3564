package mgo

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	mgoutil "NotifyGate/data/database/mgo/mongoutil"
	"NotifyGate/logger"
	"NotifyGate/tools/errs"
)

// Manager keeps one Mongo client alive for the process, reconnecting with
// exponential backoff when the connection drops.
type Manager struct {
	mu        sync.RWMutex
	client    *mgoutil.Client
	readyCh   chan struct{} // closed once on first successful connect
	readyOnce sync.Once

	lastErr atomic.Value // error
}

var globalMgr = Manager{readyCh: make(chan struct{})}

// StartAsync runs until ctx is done; closes the ready channel on the first
// successful connect and keeps reconnecting after that.
func StartAsync(ctx context.Context, cfg *mgoutil.Config) {
	go func() {
		const (
			baseBackoff = 200 * time.Millisecond
			maxBackoff  = 5 * time.Second
			healthEvery = 10 * time.Second
			failThresh  = 3
		)

		for {
			attempt := 0
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				cli, err := mgoutil.NewMongoDB(ctx, cfg)
				if err == nil {
					globalMgr.mu.Lock()
					globalMgr.client = cli
					globalMgr.mu.Unlock()
					globalMgr.readyOnce.Do(func() { close(globalMgr.readyCh) })
					break
				}

				globalMgr.lastErr.Store(err)

				backoff := baseBackoff << attempt
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				jitter := time.Duration(rand.Int63n(int64(backoff/5) + 1))
				sleep := backoff - jitter/2

				timer := time.NewTimer(sleep)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
				if attempt < 6 {
					attempt++
				}
			}

			fail := 0
			healthTicker := time.NewTicker(healthEvery)
			reconnect := false
			for !reconnect {
				select {
				case <-ctx.Done():
					healthTicker.Stop()
					globalMgr.mu.Lock()
					if globalMgr.client != nil {
						_ = globalMgr.client.GetDB().Client().Disconnect(context.Background())
						globalMgr.client = nil
					}
					globalMgr.mu.Unlock()
					return
				case <-healthTicker.C:
					globalMgr.mu.RLock()
					c := globalMgr.client
					globalMgr.mu.RUnlock()
					if c == nil {
						reconnect = true
						break
					}
					if err := c.GetDB().Client().Ping(ctx, nil); err != nil {
						fail++
						globalMgr.lastErr.Store(err)
						logger.Warnf("[mgo] health ping failed (%d/%d): %v", fail, failThresh, err)
						if fail >= failThresh {
							globalMgr.mu.Lock()
							globalMgr.client = nil
							globalMgr.mu.Unlock()
							reconnect = true
						}
					} else {
						fail = 0
					}
				}
			}
			healthTicker.Stop()
		}
	}()
}

// WaitReady blocks until the first connect succeeds or ctx is done.
func WaitReady(ctx context.Context) error {
	select {
	case <-globalMgr.readyCh:
		return nil
	case <-ctx.Done():
		if err, ok := globalMgr.lastErr.Load().(error); ok && err != nil {
			return errs.WrapMsg(err, "mongo never became ready")
		}
		return ctx.Err()
	}
}

// GetClient returns the current client, nil while disconnected.
func GetClient() *mgoutil.Client {
	globalMgr.mu.RLock()
	defer globalMgr.mu.RUnlock()
	return globalMgr.client
}
