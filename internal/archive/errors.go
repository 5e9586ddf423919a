package archive

import "errors"

// ErrPageLoadTimeout is returned when a page does not finish loading
// within the configured page timeout. It is a per-page failure: the
// result row records it and the run continues with the remaining pages.
var ErrPageLoadTimeout = errors.New("page load timeout")
