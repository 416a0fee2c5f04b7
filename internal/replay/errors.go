package replay

import "fmt"

// OpenError reports that the log container could not be opened or read.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("error opening file %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// DirectoryCreateError reports that the output directory could not be
// provisioned.
type DirectoryCreateError struct {
	Path string
	Err  error
}

func (e *DirectoryCreateError) Error() string {
	return fmt.Sprintf("error creating directory %s: %v", e.Path, e.Err)
}

func (e *DirectoryCreateError) Unwrap() error { return e.Err }

// ExportError reports a failure to write one point cloud.
type ExportError struct {
	Seq  uint32
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("error saving cloud seq %d to %s: %v", e.Seq, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// RelayError reports a failure to publish a transform batch.
type RelayError struct {
	Position uint64
	Err      error
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("error relaying transforms at record %d: %v", e.Position, e.Err)
}

func (e *RelayError) Unwrap() error { return e.Err }
