package page

import "errors"

var (
	errShortUberPage         = errors.New("page: buffer too short for UberPage")
	errShortRevisionRoot     = errors.New("page: buffer too short for RevisionRootPage")
	errShortIndirect         = errors.New("page: buffer too short for IndirectPage")
	errShortLeaf             = errors.New("page: buffer too short for leaf page")
	errShortPathSummaryEntry = errors.New("page: buffer too short for path summary entry")
)
