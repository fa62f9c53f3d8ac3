package intentlog

import "errors"

var (
	errUnknownKey  = errors.New("intentlog: unknown log key")
	errEmptyPage   = errors.New("intentlog: container carries neither a complete nor a modified page")
	errNoSpillPath = errors.New("intentlog: spill requested but no spill store configured")
)
