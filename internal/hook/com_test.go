package hook

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umhmon/umh/internal/signal"
)

type pipeRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (p *pipeRecorder) Pipe(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

type progIDs map[uuid.UUID]string

func (m progIDs) ProgID(id uuid.UUID) (string, bool) {
	s, ok := m[id]
	return s, ok
}

var (
	shellWindows = uuid.MustParse("9BA05972-F6A8-11CF-A442-00A0C90A8F39")
	iidDispatch  = uuid.MustParse("00020400-0000-0000-C000-000000000046")
)

func hresultOK() uint32 { return 0 }

func TestCoCreateInstance_SignalsOnce(t *testing.T) {
	pipe := &pipeRecorder{}
	rt, rec, _ := newTestRuntime(t, quietPolicy(),
		WithGate(signal.NewGate(pipe, discardLogger())),
		WithProgIDs(progIDs{shellWindows: "Shell.Application.1"}))

	req := ClassRequest{CLSID: shellWindows, IID: iidDispatch, Context: 4}
	rt.CoCreateInstance(req, hresultOK)
	rt.CoCreateInstance(req, hresultOK)

	assert.Equal(t, []string{"SHELL:"}, pipe.msgs)
	assert.True(t, rt.State().SleepSkipDisabled.Load())

	recs := rec.byAPI("CoCreateInstance")
	require.Len(t, recs, 2)
	assert.Equal(t, "shsu", recs[0].Signature)
	assert.Equal(t, "com", recs[0].Category)
	v, _ := recs[0].Get("rclsid")
	assert.Equal(t, "9BA05972-F6A8-11CF-A442-00A0C90A8F39", v)
	v, _ = recs[0].Get("riid")
	assert.Equal(t, "00020400-0000-0000-C000-000000000046", v)
	v, _ = recs[0].Get("ProgID")
	assert.Equal(t, "Shell.Application.1", v)
}

func TestCoCreateInstance_NestedDoesNotSignal(t *testing.T) {
	pipe := &pipeRecorder{}
	rt, _, _ := newTestRuntime(t, quietPolicy(), WithGate(signal.NewGate(pipe, discardLogger())))

	g := rt.Enter("CoGetClassObject")
	rt.CoCreateInstance(ClassRequest{CLSID: shellWindows}, hresultOK)
	g.Leave()

	assert.Empty(t, pipe.msgs)
	assert.True(t, rt.State().SleepSkipDisabled.Load(), "sleep skipping is disabled regardless")
}

func TestCoCreateInstanceEx(t *testing.T) {
	pipe := &pipeRecorder{}
	rt, rec, _ := newTestRuntime(t, quietPolicy(), WithGate(signal.NewGate(pipe, discardLogger())))
	wmi := signal.CLSIDs(signal.CategoryWMI)[0]

	ret := rt.CoCreateInstanceEx(ClassRequest{CLSID: wmi, Server: "host"}, func() uint32 { return 0x80070005 })
	assert.Equal(t, uint32(0x80070005), ret)
	assert.Equal(t, []string{"WMI:"}, pipe.msgs)

	rt.CoCreateInstanceEx(ClassRequest{CLSID: wmi}, hresultOK)

	recs := rec.byAPI("CoCreateInstanceEx")
	require.Len(t, recs, 2)
	assert.Equal(t, "shuu", recs[0].Signature)
	assert.False(t, recs[0].Success)
	v, _ := recs[0].Get("ServerName")
	assert.Equal(t, "host", v)
	v, ok := recs[1].Get("ServerName")
	assert.True(t, ok)
	assert.Nil(t, v)
	v, _ = recs[1].Get("ProgID")
	assert.Nil(t, v)
}

func TestCoGetClassObject_DoesNotSignal(t *testing.T) {
	pipe := &pipeRecorder{}
	rt, rec, _ := newTestRuntime(t, quietPolicy(), WithGate(signal.NewGate(pipe, discardLogger())))

	rt.CoGetClassObject(ClassRequest{CLSID: shellWindows, IID: iidDispatch}, hresultOK)

	assert.Empty(t, pipe.msgs)
	assert.False(t, rt.State().SleepSkipDisabled.Load())
	require.Len(t, rec.byAPI("CoGetClassObject"), 1)
}
