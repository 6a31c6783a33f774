package enum

// Source names the tier that produced a price snapshot.
type Source uint8

const (
	_source_beg Source = iota
	SourceStream
	SourceREST
	SourceSynthetic
	_source_end
)

func (s Source) IsAvailable() bool {
	return s > _source_beg && s < _source_end
}

func (s Source) String() string {
	switch s {
	case SourceStream:
		return "stream"
	case SourceREST:
		return "rest"
	case SourceSynthetic:
		return "synthetic"
	default:
		return "unknown"
	}
}
