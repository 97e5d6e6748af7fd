// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package modelspec describes a tensor graph (operators, tensors, their
// lifetimes and data-flow roles) in a small JSON format, and registers such
// a description into a planner.Planner.
//
// This is a front-end convenience for the memplan command-line tool and for
// integration tests; the planner itself has no wire format and does not
// depend on this package.
package modelspec

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/gomlx/memplan/planner"
	"github.com/gomlx/memplan/types/bitset"
)

// Conv2D is the geometry of a CONV_2D operator. Field meanings match
// planner.Conv2DParams.
type Conv2D struct {
	InputHeight    int `json:"input_height"`
	InputWidth     int `json:"input_width"`
	InputChannels  int `json:"input_channels"`
	FilterHeight   int `json:"filter_height"`
	FilterWidth    int `json:"filter_width"`
	OutputHeight   int `json:"output_height"`
	OutputWidth    int `json:"output_width"`
	OutputChannels int `json:"output_channels"`
	StrideHeight   int `json:"stride_height"`
	StrideWidth    int `json:"stride_width"`
	PaddingHeight  int `json:"padding_height"`
	PaddingWidth   int `json:"padding_width"`
}

// Operator is one scheduled operator of the graph. Its index in
// Model.Operators is its operator id and time step.
type Operator struct {
	Kind   string  `json:"kind"`
	Conv2D *Conv2D `json:"conv2d,omitempty"`
}

// Tensor is one buffer to be placed in the arena.
type Tensor struct {
	Size      int `json:"size"`
	FirstStep int `json:"first_step"`
	LastStep  int `json:"last_step"`

	// ConsumerOf / ProducerOf list the operator ids this tensor is an
	// input / output of.
	ConsumerOf []int `json:"consumer_of,omitempty"`
	ProducerOf []int `json:"producer_of,omitempty"`

	// PinnedOffset, when present, fixes the tensor's arena offset.
	PinnedOffset *int `json:"pinned_offset,omitempty"`
}

// Model is a full graph description.
type Model struct {
	Operators []Operator `json:"operators"`
	Tensors   []Tensor   `json:"tensors"`
}

// kindFromString maps the JSON kind names onto planner kinds. Unknown kinds
// are valid and map to planner.OpOther.
func kindFromString(kind string) planner.OpKind {
	switch kind {
	case "CONV_2D":
		return planner.OpConv2D
	case "ADD":
		return planner.OpAdd
	case "MUL":
		return planner.OpMul
	default:
		return planner.OpOther
	}
}

// Decode parses a model description from r and validates it.
func Decode(r io.Reader) (*Model, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	m := &Model{}
	if err := dec.Decode(m); err != nil {
		return nil, errors.Wrap(err, "decoding model description")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// ReadFile loads and validates a model description from a JSON file.
func ReadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening model description %q", path)
	}
	defer func() { _ = f.Close() }()
	m, err := Decode(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "in %q", path)
	}
	return m, nil
}

// Validate checks internal consistency: conv geometry present exactly for
// CONV_2D operators, tensor lifetimes well formed, and mask indices within
// the operator count.
func (m *Model) Validate() error {
	for id, op := range m.Operators {
		if kindFromString(op.Kind) == planner.OpConv2D && op.Conv2D == nil {
			return errors.Errorf("operator %d: kind CONV_2D requires conv2d geometry", id)
		}
		if op.Conv2D != nil && kindFromString(op.Kind) != planner.OpConv2D {
			return errors.Errorf("operator %d: kind %s must not carry conv2d geometry", id, op.Kind)
		}
		if op.Conv2D != nil && (op.Conv2D.StrideHeight <= 0 || op.Conv2D.StrideWidth <= 0) {
			return errors.Errorf("operator %d: strides must be positive", id)
		}
	}
	for i, tensor := range m.Tensors {
		if tensor.Size < 0 {
			return errors.Errorf("tensor %d: negative size %d", i, tensor.Size)
		}
		if tensor.FirstStep < 0 || tensor.FirstStep > tensor.LastStep {
			return errors.Errorf("tensor %d: invalid live interval [%d,%d]",
				i, tensor.FirstStep, tensor.LastStep)
		}
		if tensor.PinnedOffset != nil && *tensor.PinnedOffset < 0 {
			return errors.Errorf("tensor %d: negative pinned offset %d", i, *tensor.PinnedOffset)
		}
		for _, op := range tensor.ConsumerOf {
			if op < 0 || op >= len(m.Operators) {
				return errors.Errorf("tensor %d: consumer_of references unknown operator %d", i, op)
			}
		}
		for _, op := range tensor.ProducerOf {
			if op < 0 || op >= len(m.Operators) {
				return errors.Errorf("tensor %d: producer_of references unknown operator %d", i, op)
			}
		}
	}
	return nil
}

// mask converts an operator-id list into a bit-set of the model's width.
func (m *Model) mask(ops []int) bitset.Set {
	s := bitset.Make(len(m.Operators))
	for _, op := range ops {
		s.Set(op)
	}
	return s
}

// Apply registers every operator and tensor of the model into p, which must
// have been constructed with an operator count of at least len(Operators).
func (m *Model) Apply(p *planner.Planner) error {
	for id, op := range m.Operators {
		var conv *planner.Conv2DParams
		if op.Conv2D != nil {
			conv = &planner.Conv2DParams{
				InputHeight: op.Conv2D.InputHeight, InputWidth: op.Conv2D.InputWidth,
				InputChannels: op.Conv2D.InputChannels,
				FilterHeight:  op.Conv2D.FilterHeight, FilterWidth: op.Conv2D.FilterWidth,
				OutputHeight: op.Conv2D.OutputHeight, OutputWidth: op.Conv2D.OutputWidth,
				OutputChannels: op.Conv2D.OutputChannels,
				StrideHeight:   op.Conv2D.StrideHeight, StrideWidth: op.Conv2D.StrideWidth,
				PaddingHeight: op.Conv2D.PaddingHeight, PaddingWidth: op.Conv2D.PaddingWidth,
			}
		}
		if err := p.AddOperatorInfo(id, kindFromString(op.Kind), conv); err != nil {
			return errors.WithMessagef(err, "registering operator %d", id)
		}
	}
	for i, tensor := range m.Tensors {
		consumers := m.mask(tensor.ConsumerOf)
		producers := m.mask(tensor.ProducerOf)
		var err error
		if tensor.PinnedOffset != nil {
			err = p.AddPinnedBuffer(tensor.Size, tensor.FirstStep, tensor.LastStep,
				consumers, producers, *tensor.PinnedOffset)
		} else {
			err = p.AddBuffer(tensor.Size, tensor.FirstStep, tensor.LastStep,
				consumers, producers)
		}
		if err != nil {
			return errors.WithMessagef(err, "registering tensor %d", i)
		}
	}
	return nil
}

// Plan constructs a planner over scratch, applies the model and returns the
// planner ready for queries.
func (m *Model) Plan(scratch []byte) (*planner.Planner, error) {
	p := planner.New(scratch, len(m.Operators))
	if err := m.Apply(p); err != nil {
		return nil, err
	}
	return p, nil
}
