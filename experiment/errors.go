package experiment

import "fmt"

// OutputDirectoryConflictError is returned when the experiment output
// directory already exists and is not empty, and overwriting was not
// requested. It is raised before any training happens.
type OutputDirectoryConflictError struct {
	Dir string
}

func (e *OutputDirectoryConflictError) Error() string {
	return fmt.Sprintf("output directory %q is not empty (pass overwrite to reuse it)", e.Dir)
}
