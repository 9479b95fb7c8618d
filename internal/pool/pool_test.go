package pool

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Pool
		wantErr bool
	}{
		{name: "blue", in: "blue", want: Blue},
		{name: "green", in: "green", want: Green},
		{name: "uppercase", in: "BLUE", want: Blue},
		{name: "whitespace", in: "  green \n", want: Green},
		{name: "unknown color", in: "yellow", wantErr: true},
		{name: "empty", in: "", wantErr: true},
		{name: "partial", in: "blu", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidPool) {
					t.Fatalf("Parse(%q) err = %v, want ErrInvalidPool", tc.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("Parse(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestOther(t *testing.T) {
	if Blue.Other() != Green {
		t.Errorf("Blue.Other() = %q", Blue.Other())
	}
	if Green.Other() != Blue {
		t.Errorf("Green.Other() = %q", Green.Other())
	}
	if Pool("yellow").Other() != "" {
		t.Errorf("invalid.Other() = %q", Pool("yellow").Other())
	}
}

func TestValid(t *testing.T) {
	if !Blue.Valid() || !Green.Valid() {
		t.Error("known pools must be valid")
	}
	if Pool("").Valid() || Pool("teal").Valid() {
		t.Error("unknown pools must be invalid")
	}
}
