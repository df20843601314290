package executor

import (
	"encoding/json"
	"io"
)

// SkipMessage is reported to the calling framework when a command is suspended.
const SkipMessage = "command disabled due to repeated failures"

// SkipResponse is the payload written to stdout instead of running a
// suspended command. The framework treats it as a successful no-op.
type SkipResponse struct {
	Result  string `json:"result"`
	Message string `json:"message"`
}

// WriteSkip writes the skip payload as a single JSON line.
func WriteSkip(w io.Writer) error {
	return json.NewEncoder(w).Encode(SkipResponse{Result: "continue", Message: SkipMessage})
}
