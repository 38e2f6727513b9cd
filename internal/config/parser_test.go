package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	kernel32Base = uintptr(0x7ff800000000)
	createFileW  = uintptr(0x7ff800012340)
	selfBase     = uintptr(0x180000000)
)

type fakeResolver struct{}

func (fakeResolver) ModuleBase(name string) (uintptr, error) {
	if strings.EqualFold(name, "kernel32") || strings.EqualFold(name, "kernel32.dll") {
		return kernel32Base, nil
	}
	return 0, errors.New("module not loaded")
}

func (fakeResolver) ProcAddress(base uintptr, symbol string) (uintptr, error) {
	if base == kernel32Base && symbol == "CreateFileW" {
		return createFileW, nil
	}
	return 0, errors.New("procedure not found")
}

func (fakeResolver) SelfBase() (uintptr, error) {
	return selfBase, nil
}

type recordingPatcher struct {
	addr Addr
	b    byte
}

func (r *recordingPatcher) PatchByte(addr Addr, b byte) error {
	r.addr, r.b = addr, b
	return nil
}

func newTestParser() *Parser {
	return NewParser(WithResolver(fakeResolver{}))
}

// blank returns a policy with the debugger flag cleared so derived-flag
// effects are observable.
func blank() *Policy {
	p := Defaults()
	p.Debugger = false
	return p
}

func parseLines(p *Parser, pol *Policy, lines ...string) {
	for _, l := range lines {
		p.ParseLine(pol, l)
	}
}

func TestParseLine_InertLines(t *testing.T) {
	p := newTestParser()
	pol := blank()
	want := pol.Clone()

	parseLines(p, pol, "pipe", "pipe=$PIPE_NAME", "", "exclude-apis")
	assert.Equal(t, want, pol)
}

func TestParseLine_CaseSensitivity(t *testing.T) {
	tests := []struct {
		line  string
		check func(*Policy) bool
		want  bool
	}{
		{"pipe=\\\\.\\PIPE\\cape", func(p *Policy) bool { return !p.Pipe.IsEmpty() }, true},
		{"PIPE=\\\\.\\PIPE\\cape", func(p *Policy) bool { return !p.Pipe.IsEmpty() }, false},
		{"Exclude-Apis=Sleep", func(p *Policy) bool { return len(p.ExcludedAPIs) > 0 }, false},
		{"exclude-apis=Sleep", func(p *Policy) bool { return len(p.ExcludedAPIs) > 0 }, true},
		{"Dropped-Limit=5", func(p *Policy) bool { return p.DroppedLimit == 5 }, false},
		{"BP0=0x401000", func(p *Policy) bool { return p.Breakpoints[0].Address == 0x401000 }, true},
		{"Depth=7", func(p *Policy) bool { return p.TraceDepthLimit == 7 }, true},
		{"YARASCAN=0", func(p *Policy) bool { return !p.YaraScan }, true},
		{"Full-Logs=1", func(p *Policy) bool { return p.FullLogs }, false},
		{"TRACE-INTO-API=NtCreateFile", func(p *Policy) bool { return len(p.TraceIntoAPIs) == 1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			pol := blank()
			newTestParser().ParseLine(pol, tt.line)
			assert.Equal(t, tt.want, tt.check(pol))
		})
	}
}

func TestApply_UnknownAndLegacyKeys(t *testing.T) {
	p := newTestParser()
	pol := blank()

	err := p.Apply(pol, "not-a-key", "1")
	assert.ErrorIs(t, err, ErrUnknownKey)

	assert.NoError(t, p.Apply(pol, "no-iat", "1"))
	assert.NoError(t, p.Apply(pol, "NO-IAT", "1"))
}

func TestParseLine_ScalarIdempotent(t *testing.T) {
	lines := []string{
		"depth=50", "serial=DEADBEEF", "api-cap=100", "bp0=0x401000+0x10",
		"file-of-interest=C:\\a\\b.exe", "procmemdump=yes", "type1=w", "pipe=cape",
	}
	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			p := newTestParser()
			once, twice := blank(), blank()
			p.ParseLine(once, line)
			p.ParseLine(twice, line)
			p.ParseLine(twice, line)
			assert.Equal(t, once, twice)
		})
	}
}

func TestParseLine_ListAppends(t *testing.T) {
	p := newTestParser()
	pol := blank()

	p.ParseLine(pol, "exclude-apis=Foo:Bar:Baz")
	assert.Equal(t, []string{"Foo", "Bar", "Baz"}, pol.ExcludedAPIs)

	p.ParseLine(pol, "exclude-apis=Foo:Bar:Baz")
	assert.Equal(t, []string{"Foo", "Bar", "Baz", "Foo", "Bar", "Baz"}, pol.ExcludedAPIs)

	p.ParseLine(pol, "exclude-dlls=a.dll::b.dll:")
	assert.Equal(t, []string{"a.dll", "", "b.dll", ""}, pol.ExcludedDLLs)
}

func TestParseLine_EmptyListElementsCount(t *testing.T) {
	pol := blank()
	err := newTestParser().Apply(pol, "action", "dump||scan|step|skip")
	assert.ErrorIs(t, err, ErrListFull)
	assert.Equal(t, []string{"dump", "", "scan", "step"}, pol.Actions)
}

func TestParseLine_StepOut(t *testing.T) {
	p := newTestParser()

	pol := blank()
	err := p.Apply(pol, "step-out", "junk")
	require.Error(t, err)
	assert.False(t, pol.Debugger)
	assert.False(t, pol.StepOut)

	pol = blank()
	pol.Breakpoints[2].Address = 0x401000
	err = p.Apply(pol, "step-out", "0x401000")
	assert.ErrorIs(t, err, ErrDuplicateAddress)
	assert.Zero(t, pol.Breakpoints[0].Address)
	assert.False(t, pol.Debugger)

	pol = blank()
	require.NoError(t, p.Apply(pol, "step-out", "0x402000"))
	require.NoError(t, p.Apply(pol, "step-out", "0x402000"))
	assert.Equal(t, Addr(0x402000), pol.Breakpoints[0].Address)
	assert.True(t, pol.StepOut)

	require.NoError(t, p.Apply(pol, "step-out", "0"))
	assert.Zero(t, pol.Breakpoints[0].Address)
	assert.False(t, pol.StepOut)
	assert.True(t, pol.Debugger)
}

func TestParseLine_ListCapacity(t *testing.T) {
	p := newTestParser()
	pol := blank()

	names := make([]string, ExclusionMax+5)
	for i := range names {
		names[i] = "Api" + string(rune('A'+i%26))
	}
	err := p.Apply(pol, "dump-on-api", strings.Join(names, ":"))
	assert.ErrorIs(t, err, ErrListFull)
	require.Len(t, pol.DumpOnAPIs, ExclusionMax)
	assert.Equal(t, names[:ExclusionMax], pol.DumpOnAPIs)

	err = p.Apply(pol, "action", "dump|scan|step|skip|extra")
	assert.ErrorIs(t, err, ErrListFull)
	assert.Equal(t, []string{"dump", "scan", "step", "skip"}, pol.Actions)
}

func TestParseLine_TraceIntoSetsDebugger(t *testing.T) {
	pol := blank()
	newTestParser().ParseLine(pol, "trace-into-api=NtWriteFile:NtReadFile")
	assert.True(t, pol.Debugger)
	assert.Equal(t, []string{"NtWriteFile", "NtReadFile"}, pol.TraceIntoAPIs)
}

func TestParseLine_BreakpointNumeric(t *testing.T) {
	tests := []struct {
		value string
		want  Addr
	}{
		{"0x401000+0x10", 0x401010},
		{"0x401000-0x10", 0x400ff0},
		{"4198400", 0x401000},
		{"0x401000+16", 0x401010},
		{"0x7ff812345678", 0x7ff812345678},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			pol := blank()
			newTestParser().ParseLine(pol, "bp0="+tt.value)
			assert.Equal(t, tt.want, pol.Breakpoints[0].Address)
			assert.True(t, pol.Debugger)
		})
	}
}

func TestParseLine_BreakpointDuplicateRejected(t *testing.T) {
	p := newTestParser()
	pol := blank()

	p.ParseLine(pol, "bp0=0x401010")
	before := pol.Clone()

	err := p.Apply(pol, "bp1", "0x401000+0x10")
	assert.ErrorIs(t, err, ErrDuplicateAddress)
	assert.Equal(t, before, pol)

	require.NoError(t, p.Apply(pol, "bp1", "0x401020"))
	assert.Equal(t, Addr(0x401020), pol.Breakpoints[1].Address)

	for i := range pol.Breakpoints {
		for j := range pol.Breakpoints {
			if i != j && pol.Breakpoints[i].Address != 0 {
				assert.NotEqual(t, pol.Breakpoints[i].Address, pol.Breakpoints[j].Address)
			}
		}
	}
}

func TestParseLine_BreakpointSymbolic(t *testing.T) {
	p := newTestParser()

	pol := blank()
	p.ParseLine(pol, "bp0=kernel32::CreateFileW")
	assert.Equal(t, Addr(createFileW), pol.Breakpoints[0].Address)
	assert.True(t, pol.Breakpoints[0].VirtualAddress)
	assert.True(t, pol.Debugger)
	assert.Equal(t, "kernel32", pol.BreakOnModule)
	assert.Equal(t, "CreateFileW", pol.BreakOnAPI)

	pol = blank()
	p.ParseLine(pol, "bp1=KERNEL32::CreateFileW+0x10")
	assert.Equal(t, Addr(createFileW+0x10), pol.Breakpoints[1].Address)

	pol = blank()
	p.ParseLine(pol, "bp2=kernel32::0x1234")
	assert.Equal(t, Addr(kernel32Base+0x1234), pol.Breakpoints[2].Address)

	pol = blank()
	p.ParseLine(pol, "bp3=capemon::0x100")
	assert.Equal(t, Addr(selfBase+0x100), pol.Breakpoints[3].Address)
}

func TestParseLine_BreakpointSymbolicFailures(t *testing.T) {
	p := newTestParser()
	pol := blank()

	err := p.Apply(pol, "bp0", "missing::Foo")
	assert.ErrorIs(t, err, ErrModuleNotFound)

	err = p.Apply(pol, "bp0", "kernel32::NoSuchExport")
	assert.ErrorIs(t, err, ErrSymbolNotFound)

	assert.Zero(t, pol.Breakpoints[0].Address)
	assert.False(t, pol.Debugger)

	err = NewParser().Apply(pol, "bp0", "kernel32::CreateFileW")
	assert.Error(t, err)
}

func TestParseLine_BreakpointLiterals(t *testing.T) {
	p := newTestParser()
	pol := blank()

	p.ParseLine(pol, "bp1=zero")
	assert.True(t, pol.Breakpoints[1].Zero)
	assert.False(t, pol.Debugger)

	p.ParseLine(pol, "bp0=ep")
	assert.True(t, pol.EntryPointRegister)
	assert.True(t, pol.Debugger)

	pol = blank()
	p.ParseLine(pol, "bp2=EntryPoint")
	assert.True(t, pol.EntryPointRegister)
}

func TestParseLine_ReturnBreakpoints(t *testing.T) {
	p := newTestParser()
	pol := blank()

	p.ParseLine(pol, "br0=0x500000+8")
	p.ParseLine(pol, "br3=kernel32::CreateFileW")
	assert.Equal(t, Addr(0x500008), pol.ReturnBreakpoints[0])
	assert.Equal(t, Addr(createFileW), pol.ReturnBreakpoints[3])
	assert.True(t, pol.Debugger)

	err := p.Apply(pol, "br1", "0x500008")
	assert.ErrorIs(t, err, ErrDuplicateAddress)
	assert.Zero(t, pol.ReturnBreakpoints[1])

	// Literals belong to the execute slots only.
	assert.Error(t, p.Apply(pol, "br2", "zero"))
}

func TestParseLine_AddressLists(t *testing.T) {
	p := newTestParser()
	pol := blank()

	p.ParseLine(pol, "sysbp=0x10+1:0x20-2")
	p.ParseLine(pol, "sysbp=0x30")
	assert.Equal(t, []Addr{0x11, 0x1e, 0x30}, pol.SyscallBreakpoints)
	assert.True(t, pol.Debugger)

	p.ParseLine(pol, "bp=0x100:0x200")
	p.ParseLine(pol, "bp=0x300:0x400:0x500")
	assert.Equal(t, []Addr{0x100, 0x200, 0x300, 0x400}, pol.BreakpointList)
}

func TestParseLine_SlotFields(t *testing.T) {
	p := newTestParser()
	pol := blank()

	parseLines(p, pol,
		"count0=0x10", "hc1=5", "dumptype2=010", "bpva3=1",
		"action1=dump", "instruction2=jmp", "instr3=nop", "typestring0=PE",
		"type0=w", "type1=rw", "type2=x",
	)
	assert.Equal(t, uint32(16), pol.Breakpoints[0].Count)
	assert.Equal(t, uint32(5), pol.Breakpoints[1].HitCount)
	assert.Equal(t, uint32(8), pol.Breakpoints[2].DumpType)
	assert.True(t, pol.Breakpoints[3].VirtualAddress)
	assert.Equal(t, "dump", pol.Breakpoints[1].Action)
	assert.Empty(t, pol.Breakpoints[0].Instruction)
	assert.Empty(t, pol.Breakpoints[1].Instruction)
	assert.Equal(t, "jmp", pol.Breakpoints[2].Instruction)
	assert.Equal(t, "nop", pol.Breakpoints[3].Instruction)
	assert.Equal(t, "PE", pol.Breakpoints[0].TypeString)
	assert.Equal(t, BreakpointWrite, pol.Breakpoints[0].Type)
	assert.Equal(t, BreakpointReadWrite, pol.Breakpoints[1].Type)
	assert.Equal(t, BreakpointExec, pol.Breakpoints[2].Type)
}

func TestParseLine_Limits(t *testing.T) {
	tests := []struct {
		line      string
		wantDepth uint32
		wantSteps uint32
	}{
		{"depth=all", Unlimited, SingleStepLimit},
		{"depth=50", 50, SingleStepLimit},
		{"count=ALL", 0, Unlimited},
		{"count=1000", 0, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			pol := blank()
			newTestParser().ParseLine(pol, tt.line)
			assert.Equal(t, tt.wantDepth, pol.TraceDepthLimit)
			assert.Equal(t, tt.wantSteps, pol.StepLimit)
		})
	}
}

func TestParseLine_FixedBases(t *testing.T) {
	p := newTestParser()
	pol := blank()

	parseLines(p, pol,
		"serial=DEADBEEF", "sysvol_ctimelow=0x10", "sys32_ctimehigh=ff",
		"buffer-max=010", "large-buffer-max=0x10", "dump-on-api-type=0x20",
	)
	assert.Equal(t, uint32(0xDEADBEEF), pol.SerialNumber)
	assert.Equal(t, uint32(0x10), pol.SysvolCtime.Low)
	assert.Equal(t, uint32(0xff), pol.Sys32Ctime.High)
	assert.Equal(t, uint32(10), pol.BufferMax)
	assert.Equal(t, uint32(0), pol.LargeBufferMax)
	assert.Equal(t, uint32(0x20), pol.DumpOnAPIType)
}

func TestParseLine_MalformedNumberSkipped(t *testing.T) {
	p := newTestParser()
	pol := blank()

	err := p.Apply(pol, "api-cap", "lots")
	assert.ErrorIs(t, err, ErrInvalidNumber)
	assert.Equal(t, uint32(DefaultAPICap), pol.APICap)
}

func TestParseLine_TargetOfInterest(t *testing.T) {
	tests := []struct {
		name     string
		lines    []string
		wantFile string
		wantURL  string
	}{
		{"file", []string{`file-of-interest=C:\a\b.exe`}, `C:\a\b.exe`, ""},
		{"url", []string{"file-of-interest=http://x"}, "", "http://x"},
		{"file then url", []string{`file-of-interest=C:\a\b.exe`, "file-of-interest=http://x"}, "", "http://x"},
		{"url then file", []string{"file-of-interest=http://x", `file-of-interest=C:\a\b.exe`}, `C:\a\b.exe`, ""},
		{"too short", []string{"file-of-interest=x"}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pol := blank()
			parseLines(newTestParser(), pol, tt.lines...)
			assert.Equal(t, tt.wantFile, pol.FileOfInterest)
			assert.Equal(t, tt.wantURL, pol.URLOfInterest)
		})
	}
}

func TestParseLine_Paths(t *testing.T) {
	p := newTestParser()
	pol := blank()

	p.ParseLine(pol, `analyzer=C:\tmpabc`)
	assert.Equal(t, `C:\tmpabc`, pol.Analyzer.String())
	assert.Equal(t, `C:\tmpabc\dll\`, pol.DLLPath.String())

	long := strings.Repeat("x", MaxPath*2)
	p.ParseLine(pol, "results="+long)
	assert.Len(t, pol.Results.String(), MaxPath-1)
	assert.Len(t, pol.Results.UTF16(), MaxPath)
}

func TestParseLine_SpecialFlags(t *testing.T) {
	p := newTestParser()

	pol := blank()
	parseLines(p, pol, "interactive=1", "interactive=0")
	assert.Equal(t, 1, pol.Interactive)

	pol = blank()
	parseLines(p, pol, "first-process=1", "pdf=1")
	assert.Equal(t, uint32(2), pol.APIRateCap)

	pol = blank()
	p.ParseLine(pol, "pdf=1")
	assert.True(t, pol.PDF)
	assert.Equal(t, uint32(1), pol.APIRateCap)

	pol = blank()
	p.ParseLine(pol, "str=MZ")
	assert.Equal(t, byte(2), pol.NoLogs)

	pol = blank()
	parseLines(p, pol, "force-sleepskip=1", "procmemdump=YES", "unpacker=2", "caller-dump=1")
	assert.Equal(t, 1, pol.ForceSleepSkip)
	assert.True(t, pol.ProcMemDump)
	assert.Equal(t, UnpackActive, pol.Unpacker)
	assert.True(t, pol.CallerRegions)

	pol = blank()
	parseLines(p, pol, "dumpsize=0x2000", "step-out=0x401000")
	assert.Equal(t, uint64(0x2000), pol.DumpSize)
	assert.True(t, pol.StepOut)
	assert.True(t, pol.Debugger)
	assert.Equal(t, Addr(0x401000), pol.Breakpoints[0].Address)

	pol = blank()
	p.ParseLine(pol, "dumpsize=eax")
	assert.Equal(t, "eax", pol.DumpSizeString)
}

func TestParseLine_Patch(t *testing.T) {
	patcher := &recordingPatcher{}
	p := NewParser(WithPatcher(patcher))
	pol := blank()

	require.NoError(t, p.Apply(pol, "patch", "0x90:0x401000+2"))
	assert.Equal(t, Addr(0x401002), patcher.addr)
	assert.Equal(t, byte(0x90), patcher.b)

	assert.Error(t, p.Apply(pol, "patch", "0x90"))
	assert.Error(t, p.Apply(pol, "patch", "0x90:0"))
	assert.Error(t, NewParser().Apply(pol, "patch", "0x90:0x401000"))
}

func TestKeys_ListsBothMatchModes(t *testing.T) {
	var sensitive, insensitive int
	seen := map[string]bool{}
	for _, k := range Keys() {
		assert.False(t, seen[k.Name], "duplicate key %s", k.Name)
		seen[k.Name] = true
		if k.CaseSensitive {
			sensitive++
		} else {
			insensitive++
		}
	}
	assert.True(t, seen["exclude-apis"])
	assert.True(t, seen["bp3"])
	assert.True(t, seen["instr2"])
	assert.Positive(t, sensitive)
	assert.Positive(t, insensitive)
}

func TestParseLine_RejectHandler(t *testing.T) {
	var rejected []string
	var errs []error
	p := NewParser(WithResolver(fakeResolver{}), WithRejectHandler(func(line string, err error) {
		rejected = append(rejected, line)
		errs = append(errs, err)
	}))
	parseLines(p, blank(), "no-such-key=1", "pipe=ok", "depth=abc", "$skipped", "no-iat=1")

	assert.Equal(t, []string{"no-such-key=1", "depth=abc"}, rejected)
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], ErrUnknownKey)
	assert.ErrorIs(t, errs[1], ErrInvalidNumber)
}
