package asm

import (
	"fmt"

	"github.com/holiman/uint256"
)

// ValueKind classifies a storage cell.
type ValueKind uint8

const (
	// Konst is an immutable cell holding a pre-decoded constant.
	Konst ValueKind = iota
	// Param is an input cell written by the caller before entry.
	Param
	// Local is a named cell the host may inspect after execution.
	Local
	// Temp is a compiler-introduced scratch cell with no external
	// visibility. Only Temp cells are eligible for coalescing and
	// dead-store removal.
	Temp
)

var valueKindNames = [...]string{
	Konst: "const",
	Param: "param",
	Local: "local",
	Temp:  "temp",
}

func (k ValueKind) String() string {
	if int(k) < len(valueKindNames) {
		return valueKindNames[k]
	}
	return fmt.Sprintf("valuekind(%d)", uint8(k))
}

// Value is an abstract operand with stable identity. It carries no behavior;
// the optimizer correlates reads and writes through the pointer alone.
type Value struct {
	ID   uint32
	Name string
	Kind ValueKind

	// Konst holds the decoded constant for Konst cells, nil otherwise.
	Konst *uint256.Int
}

func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}
	if v.Kind == Konst && v.Konst != nil {
		return "#" + v.Konst.Hex()
	}
	return v.Name
}

// IsKonst reports whether the value is an immutable constant cell.
func (v *Value) IsKonst() bool { return v != nil && v.Kind == Konst }

// ValueTable interns the values of one compiled unit. Named cells are
// unique per name; constant cells are unique per content.
type ValueTable struct {
	values  []*Value
	byName  map[string]*Value
	byConst map[string]*Value
}

func NewValueTable() *ValueTable {
	return &ValueTable{
		byName:  make(map[string]*Value),
		byConst: make(map[string]*Value),
	}
}

// Intern returns the value registered under name, creating it with the
// given kind on first sight. The kind of an existing value is not changed.
func (t *ValueTable) Intern(name string, kind ValueKind) *Value {
	if v, ok := t.byName[name]; ok {
		return v
	}
	v := &Value{ID: uint32(len(t.values)), Name: name, Kind: kind}
	t.values = append(t.values, v)
	t.byName[name] = v
	return v
}

// Constant returns the interned constant cell for u.
func (t *ValueTable) Constant(u *uint256.Int) *Value {
	key := u.Hex()
	if v, ok := t.byConst[key]; ok {
		return v
	}
	v := &Value{
		ID:    uint32(len(t.values)),
		Name:  key,
		Kind:  Konst,
		Konst: u.Clone(),
	}
	t.values = append(t.values, v)
	t.byConst[key] = v
	return v
}

// Lookup returns the value registered under name, if any.
func (t *ValueTable) Lookup(name string) (*Value, bool) {
	v, ok := t.byName[name]
	return v, ok
}

// Values returns the interned values in registration order.
func (t *ValueTable) Values() []*Value { return t.values }

func (t *ValueTable) Len() int { return len(t.values) }
