package executor

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandKey(t *testing.T) {
	tests := []struct {
		argv []string
		want string
	}{
		{[]string{"lint"}, "lint"},
		{[]string{"lint", "--fix", "src/"}, "lint --fix src/"},
		{[]string{"echo", "a b"}, `echo "a b"`},
		{[]string{"echo", ""}, `echo ""`},
		{[]string{"grep", `say "hi"`}, `grep "say \"hi\""`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CommandKey(tt.argv))
	}

	assert.NotEqual(t, CommandKey([]string{"a b"}), CommandKey([]string{"a", "b"}))
}

func TestWriteSkip(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, WriteSkip(&buf))
	assert.JSONEq(t, `{"result":"continue","message":"command disabled due to repeated failures"}`, buf.String())
}
