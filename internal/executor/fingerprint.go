package executor

import (
	"encoding/hex"
	"fmt"

	dispatch "github.com/ZanzyTHEbar/dispatch-agent"
	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// argsEncMode uses Core Deterministic Encoding so equal arguments always
// serialize to identical bytes.
var argsEncMode cbor.EncMode

func init() {
	var err error
	argsEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("executor: CBOR encoder initialization failed: " + err.Error())
	}
}

// Fingerprint returns the cache key for a tool call: the hex BLAKE3 digest of
// the tool name, a "|" separator and the deterministic encoding of args.
func Fingerprint(toolName dispatch.ToolName, args []interface{}) (string, error) {
	if args == nil {
		args = []interface{}{}
	}
	encoded, err := argsEncMode.Marshal(args)
	if err != nil {
		return "", dispatch.NewValidationError(executorStage, fmt.Sprintf("arguments for '%s' are not serializable", toolName), err)
	}

	payload := make([]byte, 0, len(toolName)+1+len(encoded))
	payload = append(payload, toolName...)
	payload = append(payload, '|')
	payload = append(payload, encoded...)

	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
