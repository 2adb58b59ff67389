package handler

import "errors"

// ErrMissingDependency is returned by Init when app, cfg or deps is unset.
var ErrMissingDependency = errors.New(ErrNilACDFatalLogMsg)
