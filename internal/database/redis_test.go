package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRemainingTTL(t *testing.T) {
	tests := []struct {
		name  string
		reply time.Duration
		want  time.Duration
	}{
		{"expiring key", 90 * time.Second, 90 * time.Second},
		{"persistent key", -1, NoExpiry},
		{"missing key", -2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, remainingTTL(tt.reply))
		})
	}
}
