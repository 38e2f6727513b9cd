package hook

import (
	"github.com/umhmon/umh/internal/config"
	"github.com/umhmon/umh/internal/sink"
)

// FileRequest describes a file create or open caught at the ntdll entry
// point.
type FileRequest struct {
	// API is NtCreateFile or NtOpenFile.
	API         string
	Name        string
	Access      uint32
	ShareAccess uint32
	Options     uint32
}

// OpenFile intercepts a file create or open. Touching the file of interest
// resumes suspended logging; opens of device and system objects are not
// recorded.
func (rt *Runtime) OpenFile(req FileRequest, original func() (handle uintptr, status uint32)) (uintptr, uint32) {
	var handle uintptr
	status := Invoke(rt, Call[uint32]{
		API:      req.API,
		Category: "filesystem",
		Before: func(g *Guard, p *config.Policy) {
			if IsIgnoredFile(req.Name) {
				g.Quiet()
				return
			}
			if !g.CalledByHook() {
				rt.TouchFile(p, req.Name)
			}
		},
		Original: func() uint32 {
			var status uint32
			handle, status = original()
			return status
		},
		Record: func(uint32) (string, []sink.Arg) {
			return "PFhhh", []sink.Arg{
				sink.A("FileHandle", handle),
				sink.A("FileName", req.Name),
				sink.A("DesiredAccess", req.Access),
				sink.A("ShareAccess", req.ShareAccess),
				sink.A("OpenOptions", req.Options),
			}
		},
		Outcome: NTStatus,
	})
	return handle, status
}
