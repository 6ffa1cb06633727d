package rpc

import (
	"io"

	"github.com/dd0wney/cluso-petasos/pkg/logging"
)

// resourceCleanup closes registered resources in reverse order unless
// cleared. Used while a server or client is being assembled.
type resourceCleanup struct {
	resources []namedCloser
	logger    logging.Logger
}

type namedCloser struct {
	closer io.Closer
	name   string
}

func newResourceCleanup(logger logging.Logger) *resourceCleanup {
	return &resourceCleanup{resources: make([]namedCloser, 0, 4), logger: logger}
}

func (rc *resourceCleanup) add(closer io.Closer, name string) {
	rc.resources = append(rc.resources, namedCloser{closer: closer, name: name})
}

// cleanup closes every registered resource (LIFO). Safe to call twice.
func (rc *resourceCleanup) cleanup() {
	for i := len(rc.resources) - 1; i >= 0; i-- {
		r := rc.resources[i]
		if r.closer == nil {
			continue
		}
		if err := r.closer.Close(); err != nil {
			rc.logger.Warn("failed to close resource during cleanup",
				logging.String("resource", r.name), logging.Error(err))
		}
	}
	rc.resources = rc.resources[:0]
}

// clear forgets the resources without closing them
func (rc *resourceCleanup) clear() {
	rc.resources = rc.resources[:0]
}
