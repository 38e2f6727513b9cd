//go:build !386

package config

// hookTypeConfigurable reports whether the hook-type key is honored. Only
// 32-bit monitors can choose the detour flavour.
const hookTypeConfigurable = false

func defaultHookType() HookType { return HookJmpIndirect }
