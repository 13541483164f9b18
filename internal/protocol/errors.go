package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrTooLarge        = "E_TOO_LARGE"
	ErrBusy            = "E_BUSY"
	ErrRateLimited     = "E_RATE_LIMITED"

	// Mission validation.
	ErrBadArgs            = "E_BAD_ARGS"
	ErrBadCoord           = "E_BAD_COORD"
	ErrGridSize           = "E_GRID_SIZE"
	ErrNoComponents       = "E_NO_COMPONENTS"
	ErrOutOfBounds        = "E_OUT_OF_BOUNDS"
	ErrDuplicateComponent = "E_DUPLICATE_COMPONENT"
	ErrSchema             = "E_SCHEMA"

	// Run layer.
	ErrCanceled = "E_CANCELED"
	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:    {},
	ErrTooLarge:           {},
	ErrBusy:               {},
	ErrRateLimited:        {},
	ErrBadArgs:            {},
	ErrBadCoord:           {},
	ErrGridSize:           {},
	ErrNoComponents:       {},
	ErrOutOfBounds:        {},
	ErrDuplicateComponent: {},
	ErrSchema:             {},
	ErrCanceled:           {},
	ErrInternal:           {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
