package hook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umhmon/umh/internal/config"
)

type fakeReconfig struct {
	calls  int
	result bool
}

func (r *fakeReconfig) Trigger() bool {
	r.calls++
	return r.result
}

func loaded(base uintptr) func() (uintptr, uint32) {
	return func() (uintptr, uint32) { return base, 0 }
}

func TestLoadLibrary_ReturnsBaseAndRecords(t *testing.T) {
	rt, rec, _ := newTestRuntime(t, quietPolicy())

	base, status := rt.LoadLibrary(LoadRequest{Name: `C:\Windows\System32\ws2_32.dll`, Flags: 8}, loaded(0x7ff0000))
	assert.Equal(t, uintptr(0x7ff0000), base)
	assert.Equal(t, uint32(0), status)

	recs := rec.byAPI("LdrLoadDll")
	require.Len(t, recs, 1)
	assert.Equal(t, "HFP", recs[0].Signature)
	assert.Equal(t, "system", recs[0].Category)
	v, ok := recs[0].Get("BaseAddress")
	require.True(t, ok)
	assert.Equal(t, uintptr(0x7ff0000), v)
}

func TestLoadLibrary_ObjectManagerPathIsQualified(t *testing.T) {
	rt, rec, _ := newTestRuntime(t, quietPolicy())
	rt.fileExists = func(string) bool {
		t.Fatal("qualified names are not probed")
		return false
	}
	rt.LoadLibrary(LoadRequest{Name: `\??\C:\Temp\payload.dll`}, loaded(0x1000))
	recs := rec.byAPI("LdrLoadDll")
	require.Len(t, recs, 1)
	assert.Equal(t, "HFP", recs[0].Signature)
}

func TestLoadLibrary_BareNameProbesSystemDirectory(t *testing.T) {
	rt, rec, _ := newTestRuntime(t, quietPolicy())
	var probed []string
	exists := map[string]bool{`c:\windows\system32\user32.dll`: true}
	rt.fileExists = func(p string) bool {
		probed = append(probed, p)
		return exists[p]
	}

	rt.LoadLibrary(LoadRequest{Name: "user32.dll"}, loaded(0x1000))
	rt.LoadLibrary(LoadRequest{Name: "nothere.dll"}, loaded(0))

	assert.Equal(t, []string{`c:\windows\system32\user32.dll`, `c:\windows\system32\nothere.dll`}, probed)
	recs := rec.byAPI("LdrLoadDll")
	require.Len(t, recs, 1)
	assert.Equal(t, "HoP", recs[0].Signature)
	name, _ := recs[0].Get("FileName")
	assert.Equal(t, "user32.dll", name)
}

func TestSystem32Path_Bounded(t *testing.T) {
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'a'
	}
	got := system32Path(string(long))
	assert.Len(t, got, config.MaxPath-1)
	assert.Equal(t, `c:\windows\system32\x.dll`, system32Path("x.dll"))
}

func TestLoadLibrary_MonitorModuleTriggersReconfigure(t *testing.T) {
	p := quietPolicy()
	p.DLLPath = config.NewPathString(`C:\analyzer\dll\`)
	p.TLSDump = true
	r := &fakeReconfig{result: true}
	rt, rec, _ := newTestRuntime(t, p, WithReconfig(r))

	called := false
	rt.LoadLibrary(LoadRequest{Name: `c:\Analyzer\DLL\monitor.dll`}, func() (uintptr, uint32) {
		called = true
		return 0x1000, 0
	})
	assert.True(t, called)
	assert.Equal(t, 1, r.calls)
	assert.Empty(t, rec.records())
}

func TestLoadLibrary_TouchesFileOfInterest(t *testing.T) {
	p := config.Defaults()
	p.SetFileOfInterest(`C:\Temp\target.dll`)
	rt, rec, _ := newTestRuntime(t, p)
	require.True(t, rt.Suspended(p))

	rt.LoadLibrary(LoadRequest{Name: `C:\TEMP\target.dll`}, loaded(0x1000))
	assert.False(t, rt.Suspended(p))
	assert.Len(t, rec.byAPI("LdrLoadDll"), 1)
}

func TestLoadLibrary_TLSDumpSkipsTouch(t *testing.T) {
	p := config.Defaults()
	p.SetFileOfInterest(`C:\Temp\target.dll`)
	p.TLSDump = true
	rt, _, _ := newTestRuntime(t, p)

	rt.LoadLibrary(LoadRequest{Name: `C:\Temp\target.dll`}, loaded(0x1000))
	assert.True(t, rt.Suspended(p))
}

type fakeDumper struct {
	modified   bool
	dumpOK     bool
	dumps      int
	fixImports bool
	checked    string
}

func (d *fakeDumper) CodeModified(_ uintptr, path string) bool {
	d.checked = path
	return d.modified
}

func (d *fakeDumper) DumpImage(_ uintptr, fixImports bool) bool {
	d.dumps++
	d.fixImports = fixImports
	return d.dumpOK
}

func TestUnloadLibrary_DumpsModifiedTarget(t *testing.T) {
	p := quietPolicy()
	p.SetFileOfInterest(`C:\Temp\target.dll`)
	p.ImportReconstruction = true
	d := &fakeDumper{modified: true, dumpOK: true}
	rt, rec, _ := newTestRuntime(t, p, WithDumper(d))
	rt.State().TargetDLLBase.Store(0x10000000)

	unloads := 0
	unload := func() uint32 { unloads++; return 0 }

	rt.UnloadLibrary(0x20000000, unload)
	assert.Zero(t, d.dumps, "other modules are not dumped")

	rt.UnloadLibrary(0x10000000, unload)
	assert.Equal(t, 1, d.dumps)
	assert.True(t, d.fixImports)
	assert.Equal(t, `C:\Temp\target.dll`, d.checked)
	assert.True(t, rt.State().ProcessDumped.Load())

	rt.UnloadLibrary(0x10000000, unload)
	assert.Equal(t, 1, d.dumps, "dumped once")
	assert.Equal(t, 3, unloads)
	assert.Empty(t, rec.records())
}

func TestUnloadLibrary_IdenticalCodeIsNotDumped(t *testing.T) {
	p := quietPolicy()
	d := &fakeDumper{modified: false}
	rt, _, _ := newTestRuntime(t, p, WithDumper(d))
	rt.State().TargetDLLBase.Store(0x10000000)

	rt.UnloadLibrary(0x10000000, func() uint32 { return 0 })
	assert.Zero(t, d.dumps)
	assert.True(t, rt.State().ProcessDumped.Load())
}

func TestUnloadLibrary_ProcDumpOff(t *testing.T) {
	p := quietPolicy()
	p.ProcDump = 0
	d := &fakeDumper{modified: true, dumpOK: true}
	rt, _, _ := newTestRuntime(t, p, WithDumper(d))
	rt.State().TargetDLLBase.Store(0x10000000)

	rt.UnloadLibrary(0x10000000, func() uint32 { return 0 })
	assert.Zero(t, d.dumps)
	assert.False(t, rt.State().ProcessDumped.Load())
}
