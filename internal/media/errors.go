package media

import "errors"

// Error kinds returned by the retrieval services. Callers map them with
// errors.Is; the wrapped message never contains file system paths.
//
//	kind               message media          profile picture
//	ErrInvalidRequest  returned (400)         returned (400)
//	ErrMediaNotFound   returned (404)         placeholder
//	ErrUpstream        returned (502)         placeholder
//	ErrStorage         returned (500)         returned (500)
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrMediaNotFound  = errors.New("media not found")
	ErrUpstream       = errors.New("upstream fetch failed")
	ErrStorage        = errors.New("media storage failed")
)
