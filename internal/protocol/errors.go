package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"
	ErrSchema          = "E_SCHEMA"

	// World routing/state.
	ErrWorldBusy    = "E_WORLD_BUSY"
	ErrUnknownEvent = "E_UNKNOWN_EVENT"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrSchema:          {},
	ErrWorldBusy:       {},
	ErrUnknownEvent:    {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
