package common

import (
	"context"
	"log"
	"sync"
	"time"
)

// TimeSync tracks the clock offset against an exchange server so that
// signed requests carry acceptable timestamps.
type TimeSync struct {
	getServerTime func(ctx context.Context) (int64, error)
	syncInterval  time.Duration

	mu       sync.RWMutex
	offset   int64 // milliseconds, server - local
	lastSync time.Time
}

// NewTimeSync creates a time synchronization manager. getServerTime
// returns the venue's current time in unix milliseconds.
func NewTimeSync(getServerTime func(ctx context.Context) (int64, error)) *TimeSync {
	return &TimeSync{
		getServerTime: getServerTime,
		syncInterval:  30 * time.Minute,
	}
}

// Start performs an initial sync and keeps resyncing until ctx is done.
func (ts *TimeSync) Start(ctx context.Context) {
	if err := ts.Sync(ctx); err != nil {
		log.Printf("timesync: initial sync failed: %v", err)
	}

	go func() {
		ticker := time.NewTicker(ts.syncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ts.Sync(ctx); err != nil {
					log.Printf("timesync: sync failed: %v", err)
				}
			}
		}
	}()
}

// Sync measures the offset once. Network latency is assumed symmetric.
func (ts *TimeSync) Sync(ctx context.Context) error {
	localBefore := time.Now().UnixMilli()
	serverTime, err := ts.getServerTime(ctx)
	if err != nil {
		return err
	}
	localAfter := time.Now().UnixMilli()

	latency := (localAfter - localBefore) / 2
	localTime := localBefore + latency

	ts.mu.Lock()
	ts.offset = serverTime - localTime
	ts.lastSync = time.Now()
	ts.mu.Unlock()

	log.Printf("timesync: offset=%dms", serverTime-localTime)
	return nil
}

// Now returns the current time adjusted for server offset.
func (ts *TimeSync) Now() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return time.Now().UnixMilli() + ts.offset
}

// Offset returns the current offset in milliseconds.
func (ts *TimeSync) Offset() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.offset
}
