package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstitute(t *testing.T) {
	ctx := map[string]any{
		"name": "nightly",
		"job": map[string]any{
			"id":     float64(7),
			"status": "success",
		},
		"speed": float64(1.5),
	}

	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"job {name} done", "job nightly done"},
		{"id={job.id} status={job.status}", "id=7 status=success"},
		{"rate {speed} MB/s", "rate 1.5 MB/s"},
		{"{missing} stays", "{missing} stays"},
		{"{job.absent}", "{job.absent}"},
		{"{}", "{}"},
		{"unclosed {name", "unclosed {name"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Substitute(tt.in, ctx), "input %q", tt.in)
	}
}

func TestSubstituteSinglePass(t *testing.T) {
	ctx := map[string]any{"a": "{b}", "b": "deep"}
	assert.Equal(t, "{b}", Substitute("{a}", ctx))
}
