package epub

import "fmt"

// IOError is returned when archive cannot be written. Path names the file
// which was being produced, partial output is removed before it is returned.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("unable to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
