//go:build 386

package config

const hookTypeConfigurable = true

func defaultHookType() HookType { return HookHotpatchJmpIndirect }
