package record

import "errors"

var (
	errShortHeader         = errors.New("record: buffer shorter than fixed header")
	errBadLengthPrefix     = errors.New("record: invalid payload length prefix")
	errTruncatedPayload    = errors.New("record: payload truncated")
	errContentHashMismatch = errors.New("record: content hash mismatch")
)
