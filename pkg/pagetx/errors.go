package pagetx

import "errors"

var (
	errNilPageRef     = errors.New("pagetx: page reference resolves to nothing")
	errUnknownIndex   = errors.New("pagetx: unknown index type")
	errRecordNotFound = errors.New("pagetx: record not found")
	errHOTIndexNotSet = errors.New("pagetx: HOT index not wired for this resource")
	errAlreadyWriting = errors.New("pagetx: another write transaction is already open")
)
