package ns

import "kora/accnt"

// Descriptor is a read-only snapshot of one resource's namespace metadata,
// the introspection surface §12 adds to the core: enough to answer "what
// is at this path and is it open" without handing out a live reference.
type Descriptor struct {
	Path []string
	Kind Kind
	Open bool
}

// Describe resolves path and returns a point-in-time Descriptor.
func Describe(t *Tree, path []string) (Descriptor, bool) {
	res, ok := t.Get(path)
	if !ok {
		return Descriptor{}, false
	}
	return Descriptor{Path: res.Path, Kind: res.Kind, Open: res.Payload.IsOpen()}, true
}

// RegisterAccounting installs a File resource at
// Processes/<pid>/Accounting whose Read renders snapshot()'s current
// value, giving userspace and diagnostics a uniform way to read a
// process's CPU-time accounting through the same namespace/handle path as
// any other file (§12 "per-process CPU-time accounting").
func RegisterAccounting(t *Tree, path []string, snapshot func() accnt.Snapshot) {
	f := NewFile(path)
	f.Read = func(buf []byte, offset int64) (int, error) {
		if offset != 0 {
			return 0, nil
		}
		s := snapshot()
		text := formatSnapshot(s)
		return copy(buf, text), nil
	}
	t.Insert(path, &Resource{Kind: KindFile, Path: path, Payload: f})
}

func formatSnapshot(s accnt.Snapshot) string {
	return "user_ns=" + itoa(s.UserNanos) + " sys_ns=" + itoa(s.SysNanos) + "\n"
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
