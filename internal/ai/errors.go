package ai

import "errors"

var (
	ErrUnknownProvider = errors.New("unknown model provider")
	ErrInvalidResponse = errors.New("model returned invalid response")
	ErrEmptyResponse   = errors.New("model returned empty response")
)
