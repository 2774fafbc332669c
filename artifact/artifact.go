// Package artifact stores named text artifacts, primarily prompt templates,
// under logical paths. FS keeps them on the local filesystem with atomic
// overwrites; the s3 subpackage stores them in a bucket; Cached is a
// read-through decorator for either.
package artifact

import "errors"

// ErrNotFound reports that no artifact exists under the requested name and
// path.
var ErrNotFound = errors.New("artifact not found")
