package cyclebill

import "github.com/xraph/cyclebill/id"

// ID is the primary identifier type for all cyclebill entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
