// Package numberpool picks a tenant sending number for an outbound SMS.
package numberpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/spaolacci/murmur3"
)

// ErrAllNumbersCapped indicates every number in the pool reached its daily cap.
var ErrAllNumbersCapped = errors.New("all sending numbers reached their daily cap")

// Counter tracks daily sends per number.
type Counter interface {
	Count(ctx context.Context, key string) (int, error)
	Increment(ctx context.Context, key string) error
}

// Pool selects sending numbers deterministically by contact.
type Pool struct {
	counter Counter
	now     func() time.Time
}

// New creates a pool. now defaults to time.Now.
func New(counter Counter, now func() time.Time) *Pool {
	if now == nil {
		now = time.Now
	}

	return &Pool{counter: counter, now: now}
}

// Select returns the number for contactID: the hash picks a starting slot and
// numbers at their daily cap are skipped in rotation order. An empty pool
// returns "" so the messenger falls back to its default sender.
func (p *Pool) Select(ctx context.Context, tenantID, contactID string, numbers []models.SendingNumber) (string, error) {
	if len(numbers) == 0 {
		return "", nil
	}

	start := int(murmur3.Sum32([]byte(contactID)) % uint32(len(numbers)))

	for i := range numbers {
		candidate := numbers[(start+i)%len(numbers)]

		if candidate.DailyCap <= 0 {
			return candidate.Number, nil
		}

		count, err := p.counter.Count(ctx, p.key(tenantID, candidate.Number))
		if err != nil {
			return "", fmt.Errorf("failed to read send count for %s: %w", candidate.Number, err)
		}

		if count < candidate.DailyCap {
			return candidate.Number, nil
		}
	}

	return "", ErrAllNumbersCapped
}

// Record counts one send from number.
func (p *Pool) Record(ctx context.Context, tenantID, number string) error {
	if number == "" {
		return nil
	}

	return p.counter.Increment(ctx, p.key(tenantID, number))
}

func (p *Pool) key(tenantID, number string) string {
	return fmt.Sprintf("journey:sms:%s:%s:%s", tenantID, number, p.now().UTC().Format("2006-01-02"))
}
