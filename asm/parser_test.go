package asm

import (
	"errors"
	"strings"
	"testing"
)

func TestParseAssembly(t *testing.T) {
	p, err := ParseAssembly(`
		; a unit with one exported entry
		.param n
		.local result
		.export _run
	_run:
		COPY n, result        ; seed
		PUSH result
		POP
		JUMP_IF_FALSE result, done
		EXTERN "Debug.Log", result
	done:
		RET 0xFFFFFFFF
	`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	wantKinds := []Kind{Export, Copy, Push, Pop, JumpIfFalse, Extern, Return}
	if len(p.Instructions) != len(wantKinds) {
		t.Fatalf("got %d instructions, want %d", len(p.Instructions), len(wantKinds))
	}
	for i, k := range wantKinds {
		if p.Instructions[i].Kind != k {
			t.Errorf("instruction %d: kind = %v, want %v", i, p.Instructions[i].Kind, k)
		}
	}

	n, ok := p.Values.Lookup("n")
	if !ok || n.Kind != Param {
		t.Fatalf("n not interned as param")
	}
	result, _ := p.Values.Lookup("result")
	if result.Kind != Local {
		t.Fatalf("result not interned as local")
	}
	if p.Instructions[1].Source != n || p.Instructions[1].Target != result {
		t.Error("copy operands wrong")
	}
	if p.Instructions[4].JumpTarget != p.Instructions[6] {
		t.Error("conditional jump label resolved wrong")
	}
	if p.Instructions[5].Symbol != "Debug.Log" || len(p.Instructions[5].Args) != 1 {
		t.Error("extern signature or args wrong")
	}
	if !p.Instructions[6].Operand.IsKonst() {
		t.Error("RET operand not interned as constant")
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"unknown mnemonic", "FROB x", "unknown mnemonic"},
		{"undefined label", "JUMP nowhere", "undefined label"},
		{"dangling label", "NOP\norphan:", "no instruction"},
		{"duplicate label", "a:\nNOP\na:\nNOP", "duplicate label"},
		{"copy arity", "COPY x", "source and target"},
		{"unquoted extern", "EXTERN Debug.Log", "quoted signature"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAssembly(tc.src)
			if err == nil {
				t.Fatal("parse succeeded, want error")
			}
			if !errors.Is(err, ErrMalformedAssembly) {
				t.Errorf("err = %v, want ErrMalformedAssembly", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %q, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestParseInternsLiterals(t *testing.T) {
	p, err := ParseAssembly("PUSH 42\nPUSH 0x2a\nPUSH 7")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Instructions[0].Operand != p.Instructions[1].Operand {
		t.Error("42 and 0x2a interned as different constants")
	}
	if p.Instructions[0].Operand == p.Instructions[2].Operand {
		t.Error("42 and 7 share a constant cell")
	}
}
