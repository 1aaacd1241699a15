package normalize

import "errors"

// ErrInvalidComputeResult reports a compute result the normalizer cannot
// interpret. It is never coerced into an empty table.
var ErrInvalidComputeResult = errors.New("invalid compute result")
