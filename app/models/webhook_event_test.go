package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWebhookEventProcessedSuccessfully(t *testing.T) {
	ev := WebhookEvent{}
	assert.False(t, ev.ProcessedSuccessfully(), "unprocessed event")

	now := time.Now()
	ev.ProcessedAt = &now
	ev.ProcessingError = "account not found"
	assert.False(t, ev.ProcessedSuccessfully(), "failed event")

	ev.ProcessingError = ""
	assert.True(t, ev.ProcessedSuccessfully(), "reconciled event")
}
