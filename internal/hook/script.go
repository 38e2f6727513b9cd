package hook

import (
	"strings"

	"github.com/umhmon/umh/internal/config"
	"github.com/umhmon/umh/internal/sink"
)

// documentSeparator follows every fragment of a document.write capture.
const documentSeparator = "\r\n||||\r\n"

// ParseScriptText records script text handed to the JScript engine.
func (rt *Runtime) ParseScriptText(script string, original func() uint32) uint32 {
	return Invoke(rt, Call[uint32]{
		API:      "COleScript_ParseScriptText",
		Category: "browser",
		Original: original,
		Record: func(uint32) (string, []sink.Arg) {
			return "u", []sink.Arg{sink.A("Script", script)}
		},
		Outcome: NTStatus,
	})
}

// JsParseScript records script text and source URL parsed by JScript9.
func (rt *Runtime) JsParseScript(script, source string, original func() uintptr) uintptr {
	return Invoke(rt, Call[uintptr]{
		API:      "JsParseScript",
		Category: "browser",
		Original: original,
		Record: func(uintptr) (string, []sink.Arg) {
			return "uu", []sink.Arg{sink.A("Script", script), sink.A("Source", source)}
		},
		Outcome: Zero,
	})
}

// JsRunScript only records; the original is reached through the JScript9
// runtime on its own.
func (rt *Runtime) JsRunScript(script, source string) uintptr {
	return Invoke(rt, Call[uintptr]{
		API:      "JsRunScript",
		Category: "browser",
		Original: func() uintptr { return 0 },
		Record: func(uintptr) (string, []sink.Arg) {
			return "uu", []sink.Arg{sink.A("Script", script), sink.A("Source", source)}
		},
		Outcome: Zero,
	})
}

// JsEval records evaluated script text. The script object layout is only
// known for 32-bit processes; elsewhere nothing is recorded.
func (rt *Runtime) JsEval(script string) uint32 {
	if !rt.is32Bit {
		return 0
	}
	return Invoke(rt, Call[uint32]{
		API:      "JsEval",
		Category: "browser",
		Before: func(g *Guard, _ *config.Policy) {
			if script == "" {
				g.Quiet()
			}
		},
		Original: func() uint32 { return 0 },
		Record: func(uint32) (string, []sink.Arg) {
			return "u", []sink.Arg{sink.A("Javascript", script)}
		},
		Outcome: NTStatus,
	})
}

// DocumentWrite records the string fragments passed to document.write,
// each followed by a separator line.
func (rt *Runtime) DocumentWrite(fragments []string, original func() uint32) uint32 {
	return Invoke(rt, Call[uint32]{
		API:      "CDocument_write",
		Category: "browser",
		Original: original,
		Record: func(uint32) (string, []sink.Arg) {
			return "u", []sink.Arg{sink.A("Buffer", JoinFragments(fragments))}
		},
		Outcome: NTStatus,
	})
}

// JoinFragments renders document.write fragments as one buffer.
func JoinFragments(fragments []string) string {
	var b strings.Builder
	for _, f := range fragments {
		b.WriteString(f)
		b.WriteString(documentSeparator)
	}
	return b.String()
}

// IsValidURL records URLs checked through urlmon.
func (rt *Runtime) IsValidURL(url string, original func() uint32) uint32 {
	return Invoke(rt, Call[uint32]{
		API:      "IsValidURL",
		Category: "network",
		Original: original,
		Record: func(uint32) (string, []sink.Arg) {
			return "u", []sink.Arg{sink.A("URL", url)}
		},
		Outcome: HResult,
	})
}
