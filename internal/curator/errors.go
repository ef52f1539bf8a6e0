package curator

import "fmt"

// DecodeError means an image could not be read or fingerprinted. The image is
// skipped and never reaches the seen set or the counters.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IOError means a routed image could not be stored. Earlier placements are
// kept; the failed one consumes no sequence number.
type IOError struct {
	Path        string
	Destination string
	Err         error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("placing %s at %s: %v", e.Path, e.Destination, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
