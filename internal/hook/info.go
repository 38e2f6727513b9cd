package hook

import "sync"

// Info is the interception context of one OS thread.
type Info struct {
	// Depth counts interceptions active on the thread.
	Depth int
	// API names the innermost active interception.
	API string
	// Parent names the interception that was active when API was entered.
	Parent string
}

// infoTable keeps one Info per OS thread id.
type infoTable struct {
	m sync.Map
}

func (t *infoTable) get(tid uint32) *Info {
	if v, ok := t.m.Load(tid); ok {
		return v.(*Info)
	}
	v, _ := t.m.LoadOrStore(tid, &Info{})
	return v.(*Info)
}

// forget drops the context of an exited thread.
func (t *infoTable) forget(tid uint32) {
	t.m.Delete(tid)
}

func (t *infoTable) len() int {
	n := 0
	t.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
