package summarize

import "errors"

var (
	ErrInvalidURL = errors.New("url must start with http:// or https://")
	ErrFetch      = errors.New("fetch failed")
	ErrExtract    = errors.New("no content extracted")
	ErrLLM        = errors.New("llm request failed")
	ErrGitHub     = errors.New("github commit failed")
)
