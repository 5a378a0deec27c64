package schema

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestScalars(t *testing.T) {
	tests := []struct {
		name    string
		schema  Schema
		input   any
		want    any
		wantErr bool
	}{
		{name: "bool ok", schema: Bool(), input: true, want: true},
		{name: "bool rejects string", schema: Bool(), input: "true", wantErr: true},
		{name: "string ok", schema: String(), input: "lamp", want: "lamp"},
		{name: "string rejects int", schema: String(), input: 3, wantErr: true},
		{name: "int from int64", schema: Int(), input: int64(7), want: 7},
		{name: "int from integral float", schema: Int(), input: float64(7), want: 7},
		{name: "int rejects fraction", schema: Int(), input: 7.5, wantErr: true},
		{name: "int rejects bool", schema: Int(), input: true, wantErr: true},
		{name: "int range ok", schema: IntRange(0, 100), input: 50, want: 50},
		{name: "int range low", schema: IntRange(0, 100), input: -1, wantErr: true},
		{name: "int range high", schema: IntRange(0, 100), input: 150, wantErr: true},
		{name: "float from int", schema: Float(), input: 3, want: 3.0},
		{name: "float rejects bool", schema: Float(), input: false, wantErr: true},
		{name: "float range", schema: FloatRange(0, 1), input: 1.5, wantErr: true},
		{name: "one of ok", schema: OneOf("heat", "cool"), input: "cool", want: "cool"},
		{name: "one of miss", schema: OneOf("heat", "cool"), input: "fan", wantErr: true},
		{name: "nullable nil", schema: Nullable(Int()), input: nil, want: nil},
		{name: "nullable value", schema: Nullable(Int()), input: 4, want: 4},
		{name: "any", schema: Any(), input: []int{1}, want: []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.schema.Validate(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Fatalf("Validate(%v) error = %v, want ErrInvalid", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate(%v) error = %v", tt.input, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Validate(%v) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestObject_DefaultsAndRequired(t *testing.T) {
	s := Object(
		Key("brightness", IntRange(0, 100)),
		KeyDefault("transition", Float(), 0.5),
		KeyOptional("scene", String()),
	)

	got, err := s.Validate(map[string]any{"brightness": 50})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	want := map[string]any{"brightness": 50, "transition": 0.5}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Validate() = %#v, want %#v", got, want)
	}

	_, err = s.Validate(map[string]any{})
	var se *Error
	if !errors.As(err, &se) || !reflect.DeepEqual(se.Path, []string{"brightness"}) {
		t.Errorf("missing key error = %v, want path [brightness]", err)
	}
}

func TestObject_NestedPath(t *testing.T) {
	s := Object(
		Key("rules", List(Object(
			Key("alias", String()),
		))),
	)

	_, err := s.Validate(map[string]any{
		"rules": []any{
			map[string]any{"alias": "ok"},
			map[string]any{"alias": 3},
		},
	})
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	if !strings.Contains(err.Error(), "rules.[1].alias") {
		t.Errorf("error = %q, want path rules.[1].alias", err)
	}
}

func TestObject_ExtraKeys(t *testing.T) {
	strict := Object(Key("host", String()))
	if _, err := strict.Validate(map[string]any{"host": "h", "port": 1}); !errors.Is(err, ErrInvalid) {
		t.Errorf("strict Validate() error = %v, want ErrInvalid", err)
	}

	loose := Object(Key("host", String())).AllowExtra()
	got, err := loose.Validate(map[string]any{"host": "h", "port": 1})
	if err != nil {
		t.Fatalf("loose Validate() error = %v", err)
	}
	if got.(map[string]any)["port"] != 1 {
		t.Errorf("extra key dropped: %#v", got)
	}
}

func TestObject_NilIsEmpty(t *testing.T) {
	got, err := Object(KeyDefault("exclude", List(String()), []any{})).Validate(nil)
	if err != nil {
		t.Fatalf("Validate(nil) error = %v", err)
	}
	if !reflect.DeepEqual(got, map[string]any{"exclude": []any{}}) {
		t.Errorf("Validate(nil) = %#v", got)
	}
}

func TestObject_DefaultIsCopied(t *testing.T) {
	def := map[string]any{"a": 1}
	s := Object(KeyDefault("opts", Any(), def))

	got, _ := s.Validate(nil)
	got.(map[string]any)["opts"].(map[string]any)["a"] = 2

	if def["a"] != 1 {
		t.Error("default mutated through validated value")
	}
}

func TestObject_DoesNotMutateInput(t *testing.T) {
	in := map[string]any{"brightness": int64(5)}
	_, _ = Object(Key("brightness", Int()), KeyDefault("x", Int(), 1)).Validate(in)

	if _, ok := in["x"]; ok || in["brightness"] != int64(5) {
		t.Errorf("input mutated: %#v", in)
	}
}

func TestMap(t *testing.T) {
	got, err := Map(Int()).Validate(map[string]any{"a": 1.0, "b": int32(2)})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !reflect.DeepEqual(got, map[string]any{"a": 1, "b": 2}) {
		t.Errorf("Validate() = %#v", got)
	}

	if _, err := Map(Int()).Validate("nope"); !errors.Is(err, ErrInvalid) {
		t.Errorf("Validate(string) error = %v, want ErrInvalid", err)
	}
}

func TestList_Rejects(t *testing.T) {
	if _, err := List(Int()).Validate("1,2"); !errors.Is(err, ErrInvalid) {
		t.Errorf("Validate(string) error = %v, want ErrInvalid", err)
	}
}
