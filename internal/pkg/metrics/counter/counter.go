package counter

import (
	"context"
	"strconv"

	"github.com/nrehberg/plansync/internal/pkg/cache"
)

const (
	receivedKey  = "webhook:counters:received"
	processedKey = "webhook:counters:processed"
	failedKey    = "webhook:counters:failed"
)

// AddReceived increments the received counter for an event type in Redis
func AddReceived(eventType string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, receivedKey, eventType, 1).Err()
}

// AddProcessed increments the processed counter for an event type in Redis
func AddProcessed(eventType string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, processedKey, eventType, 1).Err()
}

// AddFailed increments the failed counter for an event type in Redis
func AddFailed(eventType string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, failedKey, eventType, 1).Err()
}

// Snapshot returns the current counters per event type for one outcome
func Snapshot(outcome string) (map[string]int64, error) {
	ctx := context.Background()
	var key string
	switch outcome {
	case "received":
		key = receivedKey
	case "failed":
		key = failedKey
	default:
		key = processedKey
	}

	data, err := cache.GetClient().HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(data))
	for eventType, raw := range data {
		n, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			continue
		}
		out[eventType] = n
	}
	return out, nil
}
