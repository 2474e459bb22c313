package vectorstore

import "fmt"

// StorageError indicates the snapshot file exists but could not be read or
// parsed. It is fatal on load: falling back to a silently empty store would
// look identical to "no documents indexed" and mislead operators.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("vector store snapshot %s: %v", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// DimensionMismatchError indicates an embedding whose length differs from the
// dimension already established in the store. This is a configuration
// inconsistency (different embedding model used for ingestion vs. querying)
// and is never silently coerced.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: store has %d, got %d", e.Want, e.Got)
}
