// Package signal holds the one-shot category gate for object instantiation
// and the emitter that writes controller tokens to the monitor pipe.
package signal

import (
	"encoding/binary"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Category is a class of well-known COM servers whose first use is reported
// to the controller.
type Category int

const (
	CategoryBITS Category = iota
	CategoryTaskScheduler
	CategoryWMI
	CategoryInterop
	CategoryShell
	categoryCount
)

var categoryNames = [categoryCount]string{
	CategoryBITS:          "BITS",
	CategoryTaskScheduler: "TASKSCHED",
	CategoryWMI:           "WMI",
	CategoryInterop:       "INTEROP",
	CategoryShell:         "SHELL",
}

func (c Category) String() string {
	if c < 0 || c >= categoryCount {
		return "UNKNOWN"
	}
	return categoryNames[c]
}

// Token is the controller message for the category.
func (c Category) Token() string {
	return c.String() + ":"
}

// Categories lists every known category in table order.
func Categories() []Category {
	out := make([]Category, 0, categoryCount)
	for c := Category(0); c < categoryCount; c++ {
		out = append(out, c)
	}
	return out
}

var clsidTable = map[uuid.UUID]Category{
	// Background Intelligent Transfer Service
	uuid.MustParse("4991D34B-80A1-4291-83B6-3328366B9097"): CategoryBITS,
	uuid.MustParse("5CE34C0D-0DC9-4C1F-897C-100000000003"): CategoryBITS,
	uuid.MustParse("69AD4AEE-51BE-439B-A92C-86AE490E8B30"): CategoryBITS,

	// Task Scheduler
	uuid.MustParse("0F87369F-A4E5-4CFC-BD3E-73E6154572DD"): CategoryTaskScheduler,
	uuid.MustParse("0F87369F-A4E5-4CFC-BD3E-5529CE8784B0"): CategoryTaskScheduler,
	uuid.MustParse("148BD52A-A2AB-11CE-B11F-00AA00530503"): CategoryTaskScheduler,

	// WMI locator and services
	uuid.MustParse("4590F811-1D3A-11D0-891F-00AA004B2E24"): CategoryWMI,
	uuid.MustParse("4590F812-1D3A-11D0-891F-00AA004B2E24"): CategoryWMI,
	uuid.MustParse("172BDDF8-CEEA-11D1-8B05-00600806D9B6"): CategoryWMI,
	uuid.MustParse("CF4CC405-E2C5-4DDD-B3CE-5E7582D8C9FA"): CategoryWMI,

	// Office automation and scripting hosts
	uuid.MustParse("000209FF-0000-0000-C000-000000000046"): CategoryInterop,
	uuid.MustParse("00024500-0000-0000-C000-000000000046"): CategoryInterop,
	uuid.MustParse("000246FF-0000-0000-C000-000000000046"): CategoryInterop,
	uuid.MustParse("0006F03A-0000-0000-C000-000000000046"): CategoryInterop,
	uuid.MustParse("0002CE02-0000-0000-C000-000000000046"): CategoryInterop,
	uuid.MustParse("0002DF01-0000-0000-C000-000000000046"): CategoryInterop,
	uuid.MustParse("000C101C-0000-0000-C000-000000000046"): CategoryInterop,
	uuid.MustParse("00000323-0000-0000-C000-000000000046"): CategoryInterop,
	uuid.MustParse("91493441-5A91-11CF-8700-00AA0060263B"): CategoryInterop,
	uuid.MustParse("75DFF2B7-6936-4C06-A8BB-676A7B00B24B"): CategoryInterop,
	uuid.MustParse("C08AFD90-F2A1-11D1-8455-00A0C91F3880"): CategoryInterop,

	// ShellWindows
	uuid.MustParse("9BA05972-F6A8-11CF-A442-00A0C90A8F39"): CategoryShell,
}

// Lookup returns the category owning clsid.
func Lookup(clsid uuid.UUID) (Category, bool) {
	c, ok := clsidTable[clsid]
	return c, ok
}

// CLSIDs returns the identifiers that define c.
func CLSIDs(c Category) []uuid.UUID {
	var out []uuid.UUID
	for id, owner := range clsidTable {
		if owner == c {
			out = append(out, id)
		}
	}
	return out
}

// Emitter delivers a token to the controlling process. Delivery is
// fire-and-forget; implementations log their own failures.
type Emitter interface {
	Pipe(msg string)
}

// Gate reports the first instantiation of each category exactly once per
// process. Flags are never reset.
type Gate struct {
	emitter Emitter
	logger  *slog.Logger
	sent    [categoryCount]atomic.Bool
}

// NewGate creates a gate emitting through e. A nil logger uses slog.Default().
func NewGate(e Emitter, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{emitter: e, logger: logger}
}

// Inspect classifies clsid and signals its category on first sighting. It
// returns the category that was signalled, if any.
//
// The flag is loaded and then stored rather than swapped; two threads racing
// on the same first sighting may both emit, which the controller tolerates.
func (g *Gate) Inspect(clsid uuid.UUID) (Category, bool) {
	c, ok := clsidTable[clsid]
	if !ok {
		return 0, false
	}
	if g.sent[c].Load() {
		return c, false
	}
	if g.emitter != nil {
		g.emitter.Pipe(c.Token())
	}
	g.sent[c].Store(true)
	g.logger.Debug("signal: category sighted", "category", c.String(), "clsid", FormatGUID(clsid))
	return c, true
}

// Sent reports whether c has already been signalled.
func (g *Gate) Sent(c Category) bool {
	if c < 0 || c >= categoryCount {
		return false
	}
	return g.sent[c].Load()
}

// FromGUIDBytes converts the in-memory layout of a Windows GUID, whose first
// three fields are little-endian, into a uuid.UUID.
func FromGUIDBytes(b [16]byte) uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint32(u[0:4], binary.LittleEndian.Uint32(b[0:4]))
	binary.BigEndian.PutUint16(u[4:6], binary.LittleEndian.Uint16(b[4:6]))
	binary.BigEndian.PutUint16(u[6:8], binary.LittleEndian.Uint16(b[6:8]))
	copy(u[8:], b[8:])
	return u
}

// FormatGUID renders id the way records carry it: uppercase, no braces.
func FormatGUID(id uuid.UUID) string {
	return strings.ToUpper(id.String())
}
