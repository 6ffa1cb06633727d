package proxy

import "errors"

var errNoAnswer = errors.New("repository returned no answer")
