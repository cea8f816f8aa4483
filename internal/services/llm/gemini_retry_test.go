package llm

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQuotaExhausted(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"http status", errors.New("googleapi: Error 429: Too Many Requests"), true},
		{"grpc status", errors.New("rpc error: code = ResourceExhausted desc = RESOURCE_EXHAUSTED"), true},
		{"quota message", errors.New("quota exceeded for metric generate_requests"), true},
		{"unrelated", errors.New("context deadline exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, quotaExhausted(tt.err))
		})
	}
}

func TestRetryHint(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   time.Duration
		hinted bool
	}{
		{
			"please retry form",
			errors.New("Error 429: Please retry in 45.387061394s."),
			time.Duration(45.387061394 * float64(time.Second)),
			true,
		},
		{
			"retryDelay form",
			errors.New(`"retryDelay": "30s"`),
			30 * time.Second,
			true,
		},
		{
			"no hint",
			errors.New("Error 429: Too Many Requests"),
			0,
			false,
		},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := retryHint(tt.err)
			assert.Equal(t, tt.hinted, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuotaBackoffWait(t *testing.T) {
	b := defaultQuotaBackoff()
	bare := errors.New("Error 429: Too Many Requests")

	// Hintless: floor, then grown, always capped at the ceiling
	assert.Equal(t, 45*time.Second, b.wait(0, bare))
	assert.Equal(t, 67500*time.Millisecond, b.wait(1, bare))
	assert.Equal(t, b.ceiling, b.wait(2, bare))
	assert.Equal(t, b.ceiling, b.wait(10, bare))

	// Hinted: padded hint replaces the floor
	hinted := fmt.Errorf("Error 429: Please retry in 10s")
	assert.Equal(t, 15*time.Second, b.wait(0, hinted))
	assert.Equal(t, 22500*time.Millisecond, b.wait(1, hinted))

	// A huge hint is still capped
	large := fmt.Errorf("Error 429: Please retry in 600s")
	assert.Equal(t, b.ceiling, b.wait(0, large))
}
