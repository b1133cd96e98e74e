package filter

import (
	"fmt"

	"github.com/robert-malhotra/go-h5store/internal/message"
)

// Pipeline applies a dataset's filters to its chunks. Bit i of a chunk's
// filter mask refers to the i-th filter of the pipeline message, including
// optional filters that were skipped when the pipeline was built.
type Pipeline struct {
	stages []stage
}

type stage struct {
	Filter
	bit      uint32
	optional bool
}

// NewPipeline builds the pipeline fp describes. A nil message yields an
// empty pipeline.
func NewPipeline(fp *message.FilterPipeline) (*Pipeline, error) {
	p := &Pipeline{}
	if fp == nil {
		return p, nil
	}
	for i, info := range fp.Filters {
		f, err := New(info)
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		p.stages = append(p.stages, stage{Filter: f, bit: 1 << uint(i), optional: info.IsOptional()})
	}
	return p, nil
}

// Empty reports whether chunks pass through unchanged.
func (p *Pipeline) Empty() bool { return p == nil || len(p.stages) == 0 }

// Encode runs the filters in order. An optional filter that fails is
// skipped and its bit set in the returned mask.
func (p *Pipeline) Encode(in []byte) ([]byte, uint32, error) {
	if p.Empty() {
		return in, 0, nil
	}
	data, mask := in, uint32(0)
	for _, s := range p.stages {
		out, err := s.Encode(data)
		switch {
		case err == nil:
			data = out
		case s.optional:
			mask |= s.bit
		default:
			return nil, 0, fmt.Errorf("filter %d: %w", s.ID(), err)
		}
	}
	return data, mask, nil
}

// Decode runs the filters in reverse, skipping those whose bit is set in
// mask.
func (p *Pipeline) Decode(in []byte, mask uint32) ([]byte, error) {
	if p.Empty() {
		return in, nil
	}
	data := in
	for i := len(p.stages) - 1; i >= 0; i-- {
		s := p.stages[i]
		if mask&s.bit != 0 {
			continue
		}
		var err error
		if data, err = s.Decode(data); err != nil {
			return nil, fmt.Errorf("filter %d: %w", s.ID(), err)
		}
	}
	return data, nil
}
