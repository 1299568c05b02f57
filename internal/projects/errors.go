package projects

import "errors"

var (
	ErrNotFound   = errors.New("project not found")
	ErrValidation = errors.New("validation error")
)
