package asset

import "errors"

// ErrInvalidAsset signals an asset uniqueness or existence violation
// (§4.7, §7): creating an asset hash that already exists, or resolving
// an asset that has been destroyed.
var ErrInvalidAsset = errors.New("asset: invalid asset")
