package hook

import (
	"strings"

	"github.com/umhmon/umh/internal/config"
	"github.com/umhmon/umh/internal/sink"
)

const system32Dir = `c:\windows\system32\`

// LoadRequest describes a module load caught at the loader entry point.
type LoadRequest struct {
	// Name is the module name as passed by the caller.
	Name  string
	Flags uint32
}

// LoadLibrary intercepts a module load. A load of the monitor itself is
// never recorded and switches a TLS-dump or interactive process to normal
// monitoring. Other loads clear logging suspension when they name the file
// of interest, and bare names that do not exist in the system directory
// are not recorded.
func (rt *Runtime) LoadLibrary(req LoadRequest, original func() (base uintptr, status uint32)) (uintptr, uint32) {
	var base uintptr
	status := Invoke(rt, Call[uint32]{
		API:      "LdrLoadDll",
		Category: "system",
		Before: func(g *Guard, p *config.Policy) {
			if p == nil {
				return
			}
			if rt.isMonitorModule(p, req.Name) {
				g.Quiet()
				if rt.reconfig != nil && rt.reconfig.Trigger() {
					rt.logger.Info("hook: monitor loaded again, switched to normal monitoring", "module", req.Name)
				}
				return
			}
			if p.TLSDump || g.CalledByHook() {
				return
			}
			rt.TouchFile(p, req.Name)
			if !isQualifiedName(req.Name) && !rt.fileExists(system32Path(req.Name)) {
				g.Quiet()
			}
		},
		Original: func() uint32 {
			var status uint32
			base, status = original()
			return status
		},
		Record: func(uint32) (string, []sink.Arg) {
			if isQualifiedName(req.Name) {
				return "HFP", []sink.Arg{
					sink.A("Flags", req.Flags),
					sink.A("FileName", req.Name),
					sink.A("BaseAddress", base),
				}
			}
			return "HoP", []sink.Arg{
				sink.A("Flags", req.Flags),
				sink.A("FileName", req.Name),
				sink.A("BaseAddress", base),
			}
		},
		Outcome: NTStatus,
	})
	return base, status
}

// isMonitorModule reports whether name is a path inside the monitor's own
// DLL directory.
func (rt *Runtime) isMonitorModule(p *config.Policy, name string) bool {
	dir := p.DLLPath.String()
	return dir != "" && len(name) >= len(dir) && strings.EqualFold(name[:len(dir)], dir)
}

// isQualifiedName reports whether name is a drive or object-manager path
// rather than a bare module name.
func isQualifiedName(name string) bool {
	return strings.HasPrefix(name, `\??\`) || (len(name) > 1 && name[1] == ':')
}

// system32Path joins a bare module name to the system directory, bounded
// like a MAX_PATH buffer.
func system32Path(name string) string {
	limit := config.MaxPath - len(system32Dir) - 1
	if len(name) > limit {
		name = name[:limit]
	}
	return system32Dir + name
}

// UnloadLibrary intercepts a module unload. When the DLL of interest is
// unloaded and process dumps are enabled it is dumped first, unless its
// code is identical to the file on disk. Unloads are not recorded.
func (rt *Runtime) UnloadLibrary(base uintptr, original func() uint32) uint32 {
	g := rt.Enter("LdrUnloadDll")
	defer g.Leave()

	p := rt.Policy()
	target := rt.state.TargetDLLBase.Load()
	if p != nil && base != 0 && base == target && p.ProcDump != 0 && rt.dumper != nil && !rt.state.ProcessDumped.Load() {
		if rt.dumper.CodeModified(base, p.FileOfInterest) {
			rt.logger.Info("hook: target DLL unloading, code modified, dumping", "base", sink.Hex(uint64(base)))
			if rt.dumper.DumpImage(base, p.ImportReconstruction) {
				rt.state.ProcessDumped.Store(true)
			}
		} else {
			rt.logger.Info("hook: target DLL unloading, code identical on disk, not dumping", "base", sink.Hex(uint64(base)))
			rt.state.ProcessDumped.Store(true)
		}
	}

	var status uint32
	g.Call(func() { status = original() })
	return status
}
