// Package nodes ships the built-in node palette: entry, logging,
// variables, delay, branching, looping, file I/O, subprocess launch, and
// HTTP calls. Heavier automation actions (screen capture, OCR, input
// simulation) are expected to arrive as plugins via the registry's
// extension point.
package nodes

import (
	"github.com/hmolina-dev/orquesta/internal/registry"
)

// RegisterBuiltins installs the built-in node types into a registry.
func RegisterBuiltins(reg *registry.Registry) error {
	regs := []registry.Registration{
		startRegistration(),
		logRegistration(),
		setVariableRegistration(),
		delayRegistration(),
		conditionRegistration(),
		loopRegistration(),
		fileWriteRegistration(),
		fileReadRegistration(),
		commandRegistration(),
		httpRequestRegistration(),
	}
	for _, r := range regs {
		if err := reg.Register(r); err != nil {
			return err
		}
	}
	return nil
}

func controlIn() registry.Port  { return registry.Port{Name: "main", Kind: registry.KindControl} }
func controlOut() registry.Port { return registry.Port{Name: "main", Kind: registry.KindControl} }
func dataIn(name string) registry.Port {
	return registry.Port{Name: name, Kind: registry.KindData}
}
func dataOut(name string) registry.Port {
	return registry.Port{Name: name, Kind: registry.KindData}
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
