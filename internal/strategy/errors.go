package strategy

import "github.com/pkg/errors"

var (
	ErrReadOnly           = errors.New("cannot update an entry in a read-only region")
	ErrIncompatibleAccess = errors.New("access type not supported by cache configuration")
)
