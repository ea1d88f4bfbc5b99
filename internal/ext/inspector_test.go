package ext

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/funvibe/bindgen/internal/model"
)

const shapesAPI = `
module: shapes
includes: [shapes.h]
classes:
  - name: Point
    kind: value
    functions:
      - "Point(int v)"
      - "Point operator*(int k) const"
      - "Point& operator+=(const Point& other)"
  - name: Shape
    virtual_destructor: true
    functions:
      - "virtual double area() const = 0"
      - "void move(int dx, int dy = 0)"
      - "void move(const Point& to)"
      - "void adopt(Shape* child)"
      - "Shape* parent() const"
      - "void clear()"
  - name: Circle
    bases: [Shape]
    functions:
      - "Circle(double r)"
      - "virtual double area() const"
      - "void clear()"
functions:
  - "Point operator*(int k, const Point& p)"
  - "double measure(int x)"
  - "double measure(double x)"
  - "void reset()"
`

func parseShapes(t *testing.T) *model.API {
	t.Helper()
	api, err := model.ParseAPI([]byte(shapesAPI), "api.yaml")
	if err != nil {
		t.Fatalf("parsing api: %v", err)
	}
	return api
}

func inspect(t *testing.T, rules ...Rule) (*model.API, *InspectResult) {
	t.Helper()
	api := parseShapes(t)
	res, err := NewInspector(&Config{API: "api.yaml", Rules: rules}, "bindgen.yaml").InspectAPI(api)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return api, res
}

func functionsOf(api *model.API, class, sig string) []*model.Function {
	fns := api.Functions
	if class != "" {
		fns = api.Class(class).Functions
	}
	var out []*model.Function
	for _, f := range fns {
		if f.MinimalSignature() == sig {
			out = append(out, f)
		}
	}
	return out
}

func TestInspectAPI_FollowsInheritance(t *testing.T) {
	api, res := inspect(t, Rule{Class: "Shape", Function: "move", AllowThread: true})

	// both Shape overloads plus the two Circle inherits
	if diff := cmp.Diff([]int{4}, res.Applied); diff != "" {
		t.Errorf("Applied mismatch (-want +got):\n%s", diff)
	}
	for _, class := range []string{"Shape", "Circle"} {
		fns := functionsOf(api, class, "move(int,int)")
		if len(fns) != 1 || !fns[0].Mods.AllowThread {
			t.Errorf("%s.move(int,int) was not modified", class)
		}
	}
}

func TestInspectAPI_OverrideNotFollowed(t *testing.T) {
	api, res := inspect(t, Rule{Class: "Shape", Function: "clear", Rename: "reset_all"})
	if res.Applied[0] != 1 {
		t.Errorf("Applied = %v, want [1]", res.Applied)
	}
	if got := functionsOf(api, "Shape", "clear()")[0].HostName(); got != "reset_all" {
		t.Errorf("Shape.clear host name = %q", got)
	}
	if got := functionsOf(api, "Circle", "clear()")[0].HostName(); got != "clear" {
		t.Errorf("Circle.clear is its own declaration and should keep its name, got %q", got)
	}
}

func TestInspectAPI_Matching(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		applied int
	}{
		{"bare name", Rule{Function: "measure", AllowThread: true}, 2},
		{"signature", Rule{Function: "measure(double)", AllowThread: true}, 1},
		{"operator slot", Rule{Class: "Point", Function: "__mul__", AllowThread: true}, 2},
		{"operator symbol", Rule{Class: "Point", Function: "operator+=", AllowThread: true}, 1},
		{"class signature", Rule{Class: "Shape", Function: "move(Point)", AllowThread: true}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, res := inspect(t, tt.rule)
			if res.Applied[0] != tt.applied {
				t.Errorf("applied to %d functions, want %d", res.Applied[0], tt.applied)
			}
		})
	}
}

func TestInspectAPI_ArgumentRules(t *testing.T) {
	api, _ := inspect(t,
		Rule{
			Class:    "Shape",
			Function: "move(int,int)",
			Inject:   []Injection{{Position: "end", Code: "// moved"}},
			Args: []ArgRule{
				{Slot: "2", Remove: true, Default: "7"},
			},
		},
		Rule{
			Class:    "Shape",
			Function: "adopt",
			Args:     []ArgRule{{Slot: "1", Ownership: "parent", Owner: "this"}},
		},
		Rule{
			Class:    "Shape",
			Function: "parent",
			Args:     []ArgRule{{Slot: "return", Ownership: "native"}},
		},
		// a later rule on the same slot replaces the ownership with a
		// reference count
		Rule{
			Class:    "Shape",
			Function: "parent",
			Args:     []ArgRule{{Slot: "return", ReferenceCount: "add", ReferenceKey: "parent"}},
		},
		Rule{
			Function: "measure(int)",
			Args:     []ArgRule{{Slot: "1", Type: "PySequence", Conversion: "%out = toInt(%in);"}},
		},
	)

	move := functionsOf(api, "Shape", "move(int,int)")[0]
	wantMove := model.Modifications{
		Snips: []model.CodeSnip{{Position: model.SnipEnd, Code: "// moved"}},
		Args: []*model.ArgumentModification{
			{Index: 2, Removed: true, ReplacedDefault: "7", Owner: model.SlotThis},
		},
	}
	if diff := cmp.Diff(wantMove, move.Mods); diff != "" {
		t.Errorf("move mods mismatch (-want +got):\n%s", diff)
	}
	if !move.ArgumentRemoved(2) {
		t.Error("argument 2 should be removed")
	}

	adopt := functionsOf(api, "Shape", "adopt(Shape*)")[0].Mods.Arg(1)
	if adopt == nil || adopt.Ownership != model.OwnershipParent || adopt.Owner != model.SlotThis {
		t.Errorf("adopt arg mods = %+v", adopt)
	}

	parent := functionsOf(api, "Shape", "parent() const")[0].Mods.Arg(model.SlotReturn)
	if parent.Ownership != model.OwnershipNone || parent.RefCount != model.RefCountAdd || parent.RefKey != "parent" {
		t.Errorf("parent return mods = %+v", parent)
	}

	measure := functionsOf(api, "", "measure(int)")[0]
	if measure.ReplacedType(1) != "PySequence" || measure.ConversionRule(1) != "%out = toInt(%in);" {
		t.Errorf("measure mods = %+v", measure.Mods.Arg(1))
	}
}

func TestInspectAPI_Errors(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr string
	}{
		{
			name:    "unknown class",
			rule:    Rule{Class: "Square", Function: "area"},
			wantErr: `bindgen.yaml: rules[0]: unknown class "Square"`,
		},
		{
			name:    "unknown method",
			rule:    Rule{Class: "Shape", Function: "spin"},
			wantErr: `class Shape has no function "spin"`,
		},
		{
			name:    "unknown module function",
			rule:    Rule{Function: "area"},
			wantErr: `no module function "area"`,
		},
		{
			name:    "argument out of range",
			rule:    Rule{Function: "measure(int)", Args: []ArgRule{{Slot: "3", Remove: true}}},
			wantErr: "rules[0] (measure(int)): measure(int): argument 3 does not exist",
		},
		{
			name:    "void return",
			rule:    Rule{Function: "reset", Args: []ArgRule{{Slot: "return", Ownership: "host"}}},
			wantErr: "return slot of a void function cannot be modified",
		},
		{
			name:    "this at module scope",
			rule:    Rule{Function: "reset", Args: []ArgRule{{Slot: "this", Ownership: "native"}}},
			wantErr: "this slot of a function without a receiver cannot be modified",
		},
		{
			name: "owner out of range",
			rule: Rule{Class: "Shape", Function: "adopt", Args: []ArgRule{
				{Slot: "1", Ownership: "parent", Owner: "4"},
			}},
			wantErr: "owner argument 4 does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{API: "api.yaml", Rules: []Rule{tt.rule}}
			_, err := NewInspector(cfg, "bindgen.yaml").InspectAPI(parseShapes(t))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestInspect_LoadsRelativeToConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "api"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "api", "shapes.yaml"), []byte(shapesAPI), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "bindgen.yaml")
	cfg := &Config{API: "api/shapes.yaml", Rules: []Rule{{Function: "reset", Remove: true}}}

	ins := NewInspector(cfg, cfgPath)
	if got, want := ins.APIPath(), filepath.Join(dir, "api", "shapes.yaml"); got != want {
		t.Errorf("APIPath = %q, want %q", got, want)
	}
	res, err := ins.Inspect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !functionsOf(res.API, "", "reset()")[0].Removed() {
		t.Error("reset should be removed")
	}

	cfg.API = "missing.yaml"
	if _, err := NewInspector(cfg, cfgPath).Inspect(); err == nil || !strings.Contains(err.Error(), "loading api") {
		t.Errorf("error = %v, want a loading error", err)
	}
}
