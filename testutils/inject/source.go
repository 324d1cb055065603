package inject

import "go.viam.com/simtemp/monitor"

// Source is an injected record source.
type Source struct {
	monitor.Source
	ReadNonblockingFunc func() ([]byte, bool, error)
	// Reads counts every ReadNonblocking call.
	Reads int
}

// ReadNonblocking calls the injected ReadNonblocking or the real version.
func (s *Source) ReadNonblocking() ([]byte, bool, error) {
	s.Reads++
	if s.ReadNonblockingFunc == nil {
		return s.Source.ReadNonblocking()
	}
	return s.ReadNonblockingFunc()
}

// QueuedSource returns a Source that yields each record once and then reports no data.
func QueuedSource(records ...[]byte) *Source {
	src := &Source{}
	src.ReadNonblockingFunc = func() ([]byte, bool, error) {
		if len(records) == 0 {
			return nil, false, nil
		}
		next := records[0]
		records = records[1:]
		return next, true, nil
	}
	return src
}
