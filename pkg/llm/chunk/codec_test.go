package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantDelta string
		wantFinal bool
		wantErr   bool
	}{
		{
			name:      "content delta",
			raw:       `{"model":"m","message":{"role":"assistant","content":"Hel"},"done":false}`,
			wantDelta: "Hel",
		},
		{
			name:      "terminal chunk",
			raw:       `{"model":"m","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop"}`,
			wantFinal: true,
		},
		{
			name:      "terminal without message",
			raw:       `{"done":true}`,
			wantFinal: true,
		},
		{
			name:      "trailing newline is ignored",
			raw:       "{\"message\":{\"content\":\"lo\"}}\n",
			wantDelta: "lo",
		},
		{
			name:    "neither message nor done",
			raw:     `{"model":"m","created_at":"2024-01-01T00:00:00Z"}`,
			wantErr: true,
		},
		{
			name:    "half of a split chunk",
			raw:     `{"message":{"role":"assis`,
			wantErr: true,
		},
		{
			name:    "empty",
			raw:     "  ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.raw))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDelta, ev.ContentDelta)
			assert.Equal(t, tt.wantFinal, ev.IsFinal)
		})
	}
}

func TestStripThinkingPreamble(t *testing.T) {
	assert.Equal(t, "final answer", StripThinkingPreamble("reasoning...</think>final answer"))
	assert.Equal(t, "no marker here", StripThinkingPreamble("no marker here"))
	assert.Equal(t, " last", StripThinkingPreamble("<think>a</think>b</think> last"))
	assert.Equal(t, "", StripThinkingPreamble("<think>only thoughts</think>"))
}
