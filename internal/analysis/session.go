package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"compara/server/internal/models"
)

type inflightRun struct {
	done   chan struct{}
	result *models.AnalysisResult
	err    error
}

type cacheEntry struct {
	result    *models.AnalysisResult
	expiresAt time.Time
}

// Coordinator deduplicates concurrent requests per session and caches
// completed results: an intermediate cache keyed by session+subject hash and
// a longer-lived result cache keyed by session id for link sharing. At most
// one analysis per session runs at a time; latecomers await the in-flight
// computation instead of recomputing.
type Coordinator struct {
	mu           sync.Mutex
	inflight     map[string]*inflightRun
	intermediate map[string]cacheEntry
	results      map[string]cacheEntry

	intermediateTTL time.Duration
	resultTTL       time.Duration
	logger          *logrus.Logger
}

func NewCoordinator(intermediateTTL, resultTTL time.Duration, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Coordinator{
		inflight:        make(map[string]*inflightRun),
		intermediate:    make(map[string]cacheEntry),
		results:         make(map[string]cacheEntry),
		intermediateTTL: intermediateTTL,
		resultTTL:       resultTTL,
		logger:          logger,
	}
}

// SubjectKey hashes the session together with the subject attributes that
// shape the search, keying the intermediate cache.
func SubjectKey(sessionID string, subject *models.PropertyRecord) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%.2f|%.2f|%.2f|%d|%d",
		sessionID, subject.Reference, subject.PropertyType,
		subject.Urbanization, subject.Suburb, subject.City,
		subject.SalePrice, subject.MonthlyPrice, subject.BuildArea,
		subject.Bedrooms, subject.Bathrooms)
	return hex.EncodeToString(h.Sum(nil))
}

// Do returns the cached result for the session if one is live, awaits an
// in-flight computation if one exists, and otherwise runs compute. The
// computation is detached from the caller's context: if the owning request
// is abandoned, other waiters still receive the eventual result or error.
func (c *Coordinator) Do(ctx context.Context, sessionID, subjectKey string, compute func() (*models.AnalysisResult, error)) (*models.AnalysisResult, error) {
	c.mu.Lock()

	if entry, ok := c.results[sessionID]; ok && time.Now().Before(entry.expiresAt) {
		c.mu.Unlock()
		c.logger.WithField("session", sessionID).Debug("Result cache hit")
		return entry.result, nil
	}
	if entry, ok := c.intermediate[subjectKey]; ok && time.Now().Before(entry.expiresAt) {
		c.mu.Unlock()
		c.logger.WithField("session", sessionID).Debug("Intermediate cache hit")
		return entry.result, nil
	}

	if run, ok := c.inflight[sessionID]; ok {
		c.mu.Unlock()
		return c.await(ctx, run)
	}

	run := &inflightRun{done: make(chan struct{})}
	c.inflight[sessionID] = run
	c.mu.Unlock()

	go func() {
		defer func() {
			// The lock entry is removed whether compute succeeded or not.
			c.mu.Lock()
			delete(c.inflight, sessionID)
			c.mu.Unlock()
			close(run.done)
		}()

		run.result, run.err = compute()
		if run.err != nil || run.result == nil {
			return
		}

		now := time.Now()
		c.mu.Lock()
		c.intermediate[subjectKey] = cacheEntry{result: run.result, expiresAt: now.Add(c.intermediateTTL)}
		c.results[sessionID] = cacheEntry{result: run.result, expiresAt: now.Add(c.resultTTL)}
		c.mu.Unlock()
	}()

	return c.await(ctx, run)
}

// await blocks until the run settles or the waiter's own context ends.
// There is no mid-computation cancellation: an abandoned waiter does not
// stop the run for the others.
func (c *Coordinator) await(ctx context.Context, run *inflightRun) (*models.AnalysisResult, error) {
	select {
	case <-run.done:
		return run.result, run.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Sweep evicts expired cache entries. Invoked periodically by the scheduler.
func (c *Coordinator) Sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, entry := range c.intermediate {
		if now.After(entry.expiresAt) {
			delete(c.intermediate, key)
			evicted++
		}
	}
	for key, entry := range c.results {
		if now.After(entry.expiresAt) {
			delete(c.results, key)
			evicted++
		}
	}
	if evicted > 0 {
		c.logger.Debugf("Swept %d expired cache entries", evicted)
	}
}
