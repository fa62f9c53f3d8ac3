package noderefs

import "errors"

var (
	errShortBuffer      = errors.New("noderefs: buffer too short for tag byte")
	errMisalignedPacked = errors.New("noderefs: packed body not a multiple of 8 bytes")
	errUnknownTag       = errors.New("noderefs: unknown serialization tag")
)
