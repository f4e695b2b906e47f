// Package manifest builds the required-operators configuration that a
// reduced runtime build consumes.
//
// A config line has the form
//
//	domain;opset;Op1,Op2{"inputs": {"0": ["float"]}},Op3
//
// where the optional JSON object after an operator restricts the types its
// kernels must support. An operator without type information needs all types.
package manifest

import (
	"bytes"
	"encoding/json"
	"slices"
	"sort"
)

// TypeInfo restricts the types an operator must support.
type TypeInfo struct {
	Inputs  map[string][]string `json:"inputs,omitempty"`
	Outputs map[string][]string `json:"outputs,omitempty"`
	Custom  json.RawMessage     `json:"custom,omitempty"`
}

// OperatorSet maps domain -> opset -> operator -> type restriction. A nil
// *TypeInfo entry means the operator is required with all types.
type OperatorSet map[string]map[int]map[string]*TypeInfo

// Add records op, widening the type restriction so the result covers both
// the existing and the new requirement.
func (s OperatorSet) Add(domain string, opset int, op string, ti *TypeInfo) {
	opsets, ok := s[domain]
	if !ok {
		opsets = make(map[int]map[string]*TypeInfo)
		s[domain] = opsets
	}
	ops, ok := opsets[opset]
	if !ok {
		ops = make(map[string]*TypeInfo)
		opsets[opset] = ops
	}

	existing, ok := ops[op]
	if !ok {
		ops[op] = ti.clone()
		return
	}
	ops[op] = mergeTypeInfo(existing, ti)
}

// Merge adds every operator of other into s.
func (s OperatorSet) Merge(other OperatorSet) {
	for domain, opsets := range other {
		for opset, ops := range opsets {
			for op, ti := range ops {
				s.Add(domain, opset, op, ti)
			}
		}
	}
}

// Contains reports whether op is required for domain and opset.
func (s OperatorSet) Contains(domain string, opset int, op string) bool {
	_, ok := s[domain][opset][op]
	return ok
}

// Covers reports whether s requires every operator of other. Type
// restrictions are not compared.
func (s OperatorSet) Covers(other OperatorSet) bool {
	for domain, opsets := range other {
		for opset, ops := range opsets {
			for op := range ops {
				if !s.Contains(domain, opset, op) {
					return false
				}
			}
		}
	}

	return true
}

// Len is the number of (domain, opset, operator) entries.
func (s OperatorSet) Len() int {
	n := 0
	for _, opsets := range s {
		for _, ops := range opsets {
			n += len(ops)
		}
	}

	return n
}

func (s OperatorSet) domains() []string {
	out := make([]string, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Strings(out)

	return out
}

func (ti *TypeInfo) clone() *TypeInfo {
	if ti == nil {
		return nil
	}

	return &TypeInfo{
		Inputs:  cloneTypeMap(ti.Inputs),
		Outputs: cloneTypeMap(ti.Outputs),
		Custom:  append(json.RawMessage(nil), ti.Custom...),
	}
}

// mergeTypeInfo returns the union of a and b. Custom restrictions cannot be
// combined, so differing ones widen the operator to all types.
func mergeTypeInfo(a, b *TypeInfo) *TypeInfo {
	if a == nil || b == nil {
		return nil
	}
	if !sameJSON(a.Custom, b.Custom) {
		return nil
	}

	return &TypeInfo{
		Inputs:  unionTypeMap(a.Inputs, b.Inputs),
		Outputs: unionTypeMap(a.Outputs, b.Outputs),
		Custom:  append(json.RawMessage(nil), a.Custom...),
	}
}

func unionTypeMap(a, b map[string][]string) map[string][]string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}

	out := cloneTypeMap(a)
	if out == nil {
		out = make(map[string][]string, len(b))
	}
	for idx, types := range b {
		out[idx] = sortedUnique(append(out[idx], types...))
	}

	return out
}

func cloneTypeMap(m map[string][]string) map[string][]string {
	if m == nil {
		return nil
	}

	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = sortedUnique(append([]string(nil), v...))
	}

	return out
}

func sortedUnique(v []string) []string {
	slices.Sort(v)
	return slices.Compact(v)
}

func sameJSON(a, b json.RawMessage) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}

	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}

	return bytes.Equal(ca.Bytes(), cb.Bytes())
}
