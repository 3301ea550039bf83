package currency

import "errors"

// ErrBalanceNotEnough is returned when a transfer's amount exceeds the
// sender's current balance (§7).
var ErrBalanceNotEnough = errors.New("currency: balance not enough")
