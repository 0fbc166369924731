package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDowntime(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"zero", 0, "0m"},
		{"seconds only", 59 * time.Second, "0m"},
		{"minutes", 10 * time.Minute, "10m"},
		{"just under an hour", 59*time.Minute + 59*time.Second, "59m"},
		{"exactly one hour", time.Hour, "1h 0m"},
		{"hours and minutes", 3*time.Hour + 25*time.Minute, "3h 25m"},
		{"just under a day", 23*time.Hour + 59*time.Minute, "23h 59m"},
		{"days", 49*time.Hour + 5*time.Minute, "2d 1h 5m"},
		{"negative clamps to zero", -time.Minute, "0m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDowntime(tt.d))
		})
	}
}
