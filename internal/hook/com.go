package hook

import (
	"github.com/google/uuid"

	"github.com/umhmon/umh/internal/config"
	"github.com/umhmon/umh/internal/signal"
	"github.com/umhmon/umh/internal/sink"
)

// ClassRequest describes an object instantiation request.
type ClassRequest struct {
	CLSID   uuid.UUID
	IID     uuid.UUID
	Context uint32
	// Server is the remote server name of CoCreateInstanceEx, empty when
	// local.
	Server string
}

// CoCreateInstance intercepts an object instantiation. The class id is
// checked against the signal categories and sleep skipping is turned off.
func (rt *Runtime) CoCreateInstance(req ClassRequest, original func() uint32) uint32 {
	return Invoke(rt, Call[uint32]{
		API:      "CoCreateInstance",
		Category: "com",
		Before:   rt.inspectClass(req.CLSID),
		Original: original,
		Record: func(uint32) (string, []sink.Arg) {
			return "shsu", []sink.Arg{
				sink.A("rclsid", signal.FormatGUID(req.CLSID)),
				sink.A("ClsContext", req.Context),
				sink.A("riid", signal.FormatGUID(req.IID)),
				sink.A("ProgID", rt.progID(req.CLSID)),
			}
		},
		Outcome: HResult,
	})
}

// CoCreateInstanceEx is CoCreateInstance with an optional remote server.
func (rt *Runtime) CoCreateInstanceEx(req ClassRequest, original func() uint32) uint32 {
	return Invoke(rt, Call[uint32]{
		API:      "CoCreateInstanceEx",
		Category: "com",
		Before:   rt.inspectClass(req.CLSID),
		Original: original,
		Record: func(uint32) (string, []sink.Arg) {
			var server any
			if req.Server != "" {
				server = req.Server
			}
			return "shuu", []sink.Arg{
				sink.A("rclsid", signal.FormatGUID(req.CLSID)),
				sink.A("ClsContext", req.Context),
				sink.A("ServerName", server),
				sink.A("ProgID", rt.progID(req.CLSID)),
			}
		},
		Outcome: HResult,
	})
}

// CoGetClassObject records class object lookups. It neither signals nor
// touches sleep skipping.
func (rt *Runtime) CoGetClassObject(req ClassRequest, original func() uint32) uint32 {
	return Invoke(rt, Call[uint32]{
		API:      "CoGetClassObject",
		Category: "com",
		Original: original,
		Record: func(uint32) (string, []sink.Arg) {
			return "shsu", []sink.Arg{
				sink.A("rclsid", signal.FormatGUID(req.CLSID)),
				sink.A("ClsContext", req.Context),
				sink.A("riid", signal.FormatGUID(req.IID)),
				sink.A("ProgID", rt.progID(req.CLSID)),
			}
		},
		Outcome: HResult,
	})
}

func (rt *Runtime) inspectClass(clsid uuid.UUID) func(*Guard, *config.Policy) {
	return func(g *Guard, _ *config.Policy) {
		if !g.CalledByHook() {
			rt.gate.Inspect(clsid)
		}
		rt.DisableSleepSkip()
	}
}

// progID returns the registered ProgID of clsid, or nil when unknown.
func (rt *Runtime) progID(clsid uuid.UUID) any {
	if rt.progIDs == nil {
		return nil
	}
	if id, ok := rt.progIDs.ProgID(clsid); ok {
		return id
	}
	return nil
}
