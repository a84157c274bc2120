package desktop

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/vibestream/internal/app/notification"
)

func TestMessage(t *testing.T) {
	tests := []struct {
		name    string
		np      notification.NowPlaying
		last    string
		summary string
		body    string
		ok      bool
	}{
		{
			name:    "new song",
			np:      notification.NowPlaying{SongID: "s1", Title: "Kesariya", Artist: "Arijit Singh", Album: "Brahmastra"},
			summary: "Kesariya",
			body:    "Arijit Singh · Brahmastra",
			ok:      true,
		},
		{
			name:    "single omits album",
			np:      notification.NowPlaying{SongID: "s2", Title: "Bones", Artist: "Imagine Dragons", Album: "Single"},
			summary: "Bones",
			body:    "Imagine Dragons",
			ok:      true,
		},
		{
			name: "same song",
			np:   notification.NowPlaying{SongID: "s1", Title: "Kesariya"},
			last: "s1",
		},
		{
			name: "state only",
			np:   notification.NowPlaying{Status: notification.StatusPaused},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, body, ok := message(tt.np, tt.last)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.summary, summary)
			assert.Equal(t, tt.body, body)
		})
	}
}
