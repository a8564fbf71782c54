package protocol

// Disconnect reason codes recorded in tick logs and the index database.
const (
	CodeMalformed   = "E_PROTO_MALFORMED"
	CodeUnknownType = "E_PROTO_UNKNOWN_TYPE"
	CodeWorldFull   = "E_WORLD_FULL"
	CodeShutdown    = "E_SHUTDOWN"
	CodeInternal    = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	CodeMalformed:   {},
	CodeUnknownType: {},
	CodeWorldFull:   {},
	CodeShutdown:    {},
	CodeInternal:    {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
