package identity

import (
	"slices"
	"strings"

	"github.com/umhmon/umh/internal/config"
)

// Feature is a policy knob a profile can switch.
type Feature int

const (
	FeatureInjection Feature = iota
	FeatureUnpacker
	FeatureCallerRegions
	FeatureAPIRateCap
	FeatureProcMemDump
	FeatureYaraScan
	FeatureNtdllProtect
	FeatureSyscall
)

func (f Feature) String() string {
	switch f {
	case FeatureInjection:
		return "injection"
	case FeatureUnpacker:
		return "unpacker"
	case FeatureCallerRegions:
		return "caller-regions"
	case FeatureAPIRateCap:
		return "api-rate-cap"
	case FeatureProcMemDump:
		return "procmemdump"
	case FeatureYaraScan:
		return "yarascan"
	case FeatureNtdllProtect:
		return "ntdll-protect"
	case FeatureSyscall:
		return "syscall"
	default:
		return "unknown"
	}
}

func (f Feature) disable(p *config.Policy) {
	switch f {
	case FeatureInjection:
		p.Injection = false
	case FeatureUnpacker:
		p.Unpacker = config.UnpackOff
	case FeatureCallerRegions:
		p.CallerRegions = false
	case FeatureAPIRateCap:
		p.APIRateCap = 0
	case FeatureProcMemDump:
		p.ProcMemDump = false
	case FeatureYaraScan:
		p.YaraScan = false
	case FeatureNtdllProtect:
		p.NtdllProtect = 0
	case FeatureSyscall:
		p.Syscall = false
	}
}

// Rule is one way a profile can match. Every non-zero field must hold.
type Rule struct {
	// ExeName is compared case-insensitively with the image base name.
	ExeName string
	// PathContains is a case-sensitive substring of the image path.
	PathContains string
	// ParentPath is compared case-insensitively with the parent's image.
	ParentPath string
	// CommandLineAny requires at least one case-sensitive substring.
	CommandLineAny []string
	// ParentUnopenable requires a parent that cannot be opened.
	ParentUnopenable bool
	// Only32Bit restricts the rule to 32-bit monitors.
	Only32Bit bool
}

func (r Rule) matches(f Facts, is32Bit bool) bool {
	if r.Only32Bit && !is32Bit {
		return false
	}
	if r.ExeName != "" && !strings.EqualFold(f.Name, r.ExeName) {
		return false
	}
	if r.PathContains != "" && !strings.Contains(f.ImagePath, r.PathContains) {
		return false
	}
	if r.ParentPath != "" && !f.ParentHasPath(r.ParentPath) {
		return false
	}
	if len(r.CommandLineAny) > 0 && !slices.ContainsFunc(r.CommandLineAny, func(s string) bool {
		return strings.Contains(f.CommandLine, s)
	}) {
		return false
	}
	if r.ParentUnopenable && f.ParentOpenable {
		return false
	}
	return true
}

// Profile is a named set of policy overrides for a process family.
type Profile struct {
	Name   string
	Branch Branch
	// Rules match if any one of them matches.
	Rules []Rule
	// Disable lists features switched off.
	Disable []Feature
	// ExcludedAPIs are added to the hook exclusion list.
	ExcludedAPIs []string
	// MinHook restricts the process to the minimal hook set.
	MinHook bool
	// NoSleepSkip turns sleep skipping off.
	NoSleepSkip bool
	// mark sets the profile's own policy flag.
	mark func(*config.Policy)
}

func (p *Profile) matches(f Facts, is32Bit bool) bool {
	return slices.ContainsFunc(p.Rules, func(r Rule) bool { return r.matches(f, is32Bit) })
}

var browserDisable = []Feature{
	FeatureInjection, FeatureAPIRateCap, FeatureNtdllProtect, FeatureProcMemDump, FeatureYaraScan,
}

// BuiltinProfiles is the profile table in evaluation order. In the
// program-files branch every matching profile applies; in the system branch
// only the first match does.
var BuiltinProfiles = []*Profile{
	{
		Name:   "firefox",
		Branch: BranchProgramFiles,
		Rules:  []Rule{{ExeName: "firefox.exe", Only32Bit: true}},
		Disable: []Feature{
			FeatureInjection, FeatureUnpacker, FeatureCallerRegions, FeatureAPIRateCap,
			FeatureProcMemDump, FeatureYaraScan, FeatureNtdllProtect,
		},
		mark: func(p *config.Policy) { p.Firefox = true },
	},
	{
		Name:    "iexplore",
		Branch:  BranchProgramFiles,
		Rules:   []Rule{{ExeName: "iexplore.exe"}},
		Disable: browserDisable,
		mark:    func(p *config.Policy) { p.IExplore = true },
	},
	{
		Name:    "edge",
		Branch:  BranchProgramFiles,
		Rules:   []Rule{{ExeName: "msedge.exe"}},
		Disable: browserDisable,
		mark:    func(p *config.Policy) { p.Edge = true },
	},
	{
		Name:    "chrome",
		Branch:  BranchProgramFiles,
		Rules:   []Rule{{ExeName: "chrome.exe"}},
		Disable: browserDisable,
		mark:    func(p *config.Policy) { p.Chrome = true },
	},
	{
		Name:   "office",
		Branch: BranchProgramFiles,
		Rules:  []Rule{{PathContains: "Microsoft Office"}},
		Disable: []Feature{
			FeatureUnpacker, FeatureCallerRegions, FeatureInjection, FeatureProcMemDump,
			FeatureYaraScan, FeatureNtdllProtect,
		},
		mark: func(p *config.Policy) { p.Office = true },
	},
	{
		Name:         "msiexec",
		Branch:       BranchSystem,
		Rules:        []Rule{{ExeName: "msiexec.exe"}},
		Disable:      []Feature{FeatureNtdllProtect, FeatureProcMemDump, FeatureYaraScan},
		ExcludedAPIs: msiExcludedAPIs,
		mark:         func(p *config.Policy) { p.MSI = true },
	},
	{
		Name:   "services",
		Branch: BranchSystem,
		Rules: []Rule{
			{ExeName: "services.exe", ParentPath: `C:\Windows\System32\wininit.exe`},
			{
				ExeName:        "svchost.exe",
				ParentPath:     `C:\Windows\System32\services.exe`,
				CommandLineAny: []string{"-k DcomLaunch", "-k netsvcs"},
			},
			{ExeName: "WmiPrvSE.exe", ParentUnopenable: true, CommandLineAny: []string{"-Embedding"}},
		},
		Disable: []Feature{
			FeatureProcMemDump, FeatureYaraScan, FeatureUnpacker, FeatureCallerRegions,
			FeatureInjection, FeatureSyscall,
		},
		MinHook:     true,
		NoSleepSkip: true,
		mark:        func(p *config.Policy) { p.Services = true },
	},
	{
		Name:         "wscript",
		Branch:       BranchSystem,
		Rules:        []Rule{{ExeName: "wscript.exe"}},
		ExcludedAPIs: []string{"memcpy", "LoadResource", "LockResource", "SizeofResource"},
	},
}

// ProfileByName looks up a builtin profile.
func ProfileByName(name string) (*Profile, error) {
	for _, p := range BuiltinProfiles {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return nil, ErrUnknownProfile
}

var msiExcludedAPIs = []string{
	"NtAllocateVirtualMemory",
	"NtProtectVirtualMemory",
	"VirtualProtectEx",
	"CryptDecodeMessage",
	"CryptDecryptMessage",
	"NtCreateThreadEx",
	"SetWindowLongPtrA",
	"SetWindowLongPtrW",
	"NtWaitForSingleObject",
	"NtSetTimer",
	"NtSetTimerEx",
	"RegOpenKeyExA",
	"RegOpenKeyExW",
	"RegCreateKeyExA",
	"RegCreateKeyExW",
	"RegDeleteKeyA",
	"RegDeleteKeyW",
	"RegEnumKeyW",
	"RegEnumKeyExA",
	"RegEnumKeyExW",
	"RegEnumValueA",
	"RegEnumValueW",
	"RegSetValueExA",
	"RegSetValueExW",
	"RegQueryValueExA",
	"RegQueryValueExW",
	"RegDeleteValueA",
	"RegDeleteValueW",
	"RegQueryInfoKeyA",
	"RegQueryInfoKeyW",
	"RegCloseKey",
	"RegNotifyChangeKeyValue",
	"NtCreateKey",
	"NtOpenKey",
	"NtOpenKeyEx",
	"NtRenameKey",
	"NtReplaceKey",
	"NtEnumerateKey",
	"NtEnumerateValueKey",
	"NtSetValueKey",
	"NtQueryValueKey",
	"NtQueryMultipleValueKey",
	"NtDeleteKey",
	"NtDeleteValueKey",
	"NtLoadKey",
	"NtLoadKey2",
	"NtLoadKeyEx",
	"NtQueryKey",
	"NtSaveKey",
	"NtSaveKeyEx",
}
