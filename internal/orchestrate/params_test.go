package orchestrate

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"crucible/internal/registry"
)

func descWithParams(params ...registry.ParamSpec) *registry.Descriptor {
	return &registry.Descriptor{
		Name:   "t",
		Params: params,
		Handler: func(_ context.Context, _ *registry.Call) (*registry.Outcome, error) {
			return &registry.Outcome{}, nil
		},
	}
}

func TestValidateParams_DefaultsApplied(t *testing.T) {
	d := descWithParams(
		registry.ParamSpec{Name: "path", Type: registry.TypeString, Required: true},
		registry.ParamSpec{Name: "overwrite", Type: registry.TypeBoolean, Default: false},
		registry.ParamSpec{Name: "hint", Type: registry.TypeString, Default: "auto"},
	)

	got, err := ValidateParams(d, map[string]any{"path": "/data"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"path": "/data", "overwrite": false, "hint": "auto"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("validated params (-want +got):\n%s", diff)
	}
}

func TestValidateParams_Coercion(t *testing.T) {
	cases := []struct {
		name    string
		spec    registry.ParamSpec
		value   any
		want    any
		wantErr bool
	}{
		{"string ok", registry.ParamSpec{Name: "p", Type: registry.TypeString}, "x", "x", false},
		{"string from number", registry.ParamSpec{Name: "p", Type: registry.TypeString}, 3.0, nil, true},
		{"bool ok", registry.ParamSpec{Name: "p", Type: registry.TypeBoolean}, true, true, false},
		{"number from json", registry.ParamSpec{Name: "p", Type: registry.TypeNumber}, 2.5, 2.5, false},
		{"number from int", registry.ParamSpec{Name: "p", Type: registry.TypeNumber}, 3, 3.0, false},
		{"integer from whole float", registry.ParamSpec{Name: "p", Type: registry.TypeInteger}, 4.0, 4, false},
		{"integer from fraction", registry.ParamSpec{Name: "p", Type: registry.TypeInteger}, 4.5, nil, true},
		{"object ok", registry.ParamSpec{Name: "p", Type: registry.TypeObject}, map[string]any{"a": 1}, map[string]any{"a": 1}, false},
		{"array ok", registry.ParamSpec{Name: "p", Type: registry.TypeArray}, []any{"a"}, []any{"a"}, false},
		{"array from string", registry.ParamSpec{Name: "p", Type: registry.TypeArray}, "a", nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := descWithParams(tc.spec)
			got, err := ValidateParams(d, map[string]any{"p": tc.value})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected violation, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.want, got["p"]); diff != "" {
				t.Errorf("coerced value (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidateParams_CollectsEverything(t *testing.T) {
	d := descWithParams(
		registry.ParamSpec{Name: "a", Type: registry.TypeString, Required: true},
		registry.ParamSpec{Name: "b", Type: registry.TypeInteger, Required: true},
	)

	_, err := ValidateParams(d, map[string]any{
		"b":     "not-a-number",
		"extra": true,
	})
	if err == nil {
		t.Fatal("expected violations")
	}
	if len(err.Violations) != 3 {
		t.Errorf("violations = %q, want 3 entries (missing a, bad b, undeclared extra)", err.Violations)
	}
}
