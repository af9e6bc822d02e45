package lock

import "context"

var (
	_ Manager = (*NopManager)(nil)
)

// NopManager grants every lock request unconditionally. It is the safe
// fallback used when no locking infrastructure is configured.
type NopManager struct{}

// Nop returns the shared no-op manager.
func Nop() *NopManager {
	return &nop
}

var nop NopManager

// Lock grants the request without coordinating with anything.
func (NopManager) Lock(context.Context, Type, ...string) error {
	return nil
}

// Unlock succeeds unconditionally.
func (NopManager) Unlock(context.Context, Type, ...string) error {
	return nil
}
