package gcs

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
)

// isPreconditionFailed reports a 412 from a DoesNotExist write: the object is already there.
func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}
