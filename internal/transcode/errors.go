package transcode

import "errors"

// ErrDecode is returned when the source bytes are not a decodable image.
// This is a permanent failure; retrying the same bytes will not help.
var ErrDecode = errors.New("source image cannot be decoded")

// ErrTimeout is returned when one asset's decode+encode work exceeds the
// pipeline's wall-clock budget.
var ErrTimeout = errors.New("transcode exceeded time budget")
