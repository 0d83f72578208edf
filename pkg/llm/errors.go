package llm

import "errors"

// ErrModelUnavailable marks transport and provider-side failures of a chat
// call: the request never reached the model, or the model refused to serve
// it. Callers match it with errors.Is to separate upstream outages from
// local bugs.
var ErrModelUnavailable = errors.New("model provider unavailable")
