package overload

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/funvibe/bindgen/internal/model"
)

const shapesAPI = `
module: geometry
enums:
  - name: Color
  - name: Alignment
    flags: true
classes:
  - name: Size
    kind: value
    functions:
      - "Size(int w, int h)"
  - name: Point
    kind: value
    functions:
      - "Point(int v)"
      - "Point(const Size& s)"
      - "Point operator*(int k) const"
      - "Point& operator=(const Point& other)"
      - "operator double() const"
  - name: Rect
    kind: value
    functions:
      - "Rect(const Point& p)"
  - name: Shape
    virtual_destructor: true
    functions:
      - "Shape()"
      - "virtual double area() const = 0"
      - "virtual void draw(Color c)"
      - "void move(int dx, int dy = 0)"
      - "static Shape* create(int kind)"
      - "Shape* create(const Point& at)"
      - "void hidden()"
      - sig: "void secret()"
        access: private
      - sig: "virtual void paint() = 0"
        access: private
      - "void raw(int* p)"
  - name: Circle
    bases: [Shape]
    functions:
      - "Circle(double r)"
      - "virtual double area() const"
      - sig: "virtual void paint()"
        access: private
  - name: Base
    functions:
      - "void ping(int x)"
  - name: Left
    bases: [Base]
  - name: Right
    bases: [Base]
  - name: Diamond
    bases: [Left, Right]
functions:
  - "Point operator*(int k, const Point& p)"
  - "double area(int x)"
  - "double area(double x)"
  - "double area(Shape* s)"
`

func loadAPI(t testing.TB, src string) *model.API {
	t.Helper()
	api, err := model.ParseAPI([]byte(src), "api.yaml")
	if err != nil {
		t.Fatalf("parsing api: %v", err)
	}
	return api
}

func function(t testing.TB, api *model.API, class, sig string) *model.Function {
	t.Helper()
	fns := api.Functions
	if class != "" {
		fns = api.Class(class).Functions
	}
	for _, f := range fns {
		if f.MinimalSignature() == sig {
			return f
		}
	}
	t.Fatalf("no function %s on %q", sig, class)
	return nil
}

func collect(t testing.TB, api *model.API, class, name string) *Group {
	t.Helper()
	var c *model.Class
	if class != "" {
		c = api.Class(class)
	}
	g, err := NewCollector(api).Collect(c, name)
	if err != nil {
		t.Fatalf("Collect(%s, %s): %v", class, name, err)
	}
	return g
}

func TestCollect_ExclusionRules(t *testing.T) {
	api := loadAPI(t, shapesAPI)
	function(t, api, "Shape", "hidden()").Mods.Remove = true
	function(t, api, "Shape", "draw(Color)").Mods.Remove = true

	coll := NewCollector(api)
	names := coll.Names(api.Class("Shape"))
	if got := strings.Join(names, ","); got != "Shape,area,draw,move,create,hidden,secret,paint,raw" {
		t.Errorf("Names() = %s", got)
	}

	tests := []struct {
		name string
		want error
		stub bool
	}{
		{"hidden", ErrEmptyGroup, false}, // removed, not abstract
		{"draw", ErrEmptyGroup, false},   // removed virtual, not abstract
		{"secret", ErrEmptyGroup, false}, // private
		{"paint", nil, true},             // private but abstract
		{"area", nil, false},
		{"raw", ErrEmptyGroup, false}, // int* has no host form
		{"Shape", ErrEmptyGroup, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := coll.Collect(api.Class("Shape"), tt.name)
			if tt.want != nil {
				if !errors.Is(err, tt.want) {
					t.Fatalf("got %v; want %v", err, tt.want)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if g.Overloads[0].Stub != tt.stub {
				t.Errorf("Stub = %v; want %v", g.Overloads[0].Stub, tt.stub)
			}
		})
	}
}

func TestCollect_AssignmentAndCastDropped(t *testing.T) {
	api := loadAPI(t, shapesAPI)
	for _, f := range api.Class("Point").Functions {
		if f.IsAssignmentOperator() || f.Cast {
			if name := f.HostName(); name != "" {
				if _, err := NewCollector(api).Collect(api.Class("Point"), name); !errors.Is(err, ErrEmptyGroup) {
					t.Errorf("%s should not be collected, got %v", f.MinimalSignature(), err)
				}
			}
		}
	}
	groups, err := NewCollector(api).CollectAll(api.Class("Point"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var names []string
	for _, g := range groups {
		names = append(names, g.Name)
	}
	if got := strings.Join(names, ","); got != "Point,__mul__" {
		t.Errorf("groups = %s", got)
	}
}

func TestCollect_Idempotent(t *testing.T) {
	api := loadAPI(t, shapesAPI)
	first, err := NewCollector(api).CollectAll(api.Class("Shape"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := NewCollector(api).CollectAll(api.Class("Shape"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("collection is not idempotent (-first +second):\n%s", diff)
	}
}

func TestCollect_HasBoth(t *testing.T) {
	api := loadAPI(t, shapesAPI)
	g := collect(t, api, "Shape", "create")
	if !g.HasBoth() {
		t.Error("create mixes static and instance overloads")
	}
	if g.Kind != KindMethod {
		t.Errorf("Kind = %v", g.Kind)
	}
	if collect(t, api, "Shape", "move").HasBoth() {
		t.Error("move is instance-only")
	}
}

func TestCollect_Constructors(t *testing.T) {
	api := loadAPI(t, shapesAPI)
	// Shape is abstract; its constructor is not bound
	if _, err := NewCollector(api).Collect(api.Class("Shape"), "Shape"); !errors.Is(err, ErrEmptyGroup) {
		t.Errorf("abstract constructor collected: %v", err)
	}
	g := collect(t, api, "Circle", "Circle")
	if g.Kind != KindConstructor || g.FullName() != "Circle" {
		t.Errorf("Kind = %v, FullName = %q", g.Kind, g.FullName())
	}
}

func TestCollect_ForwardAndReverseOperators(t *testing.T) {
	api := loadAPI(t, shapesAPI)
	g := collect(t, api, "Point", "__mul__")
	if g.Kind != KindBinaryOperator || !g.HasReverse() {
		t.Fatalf("Kind = %v, HasReverse = %v", g.Kind, g.HasReverse())
	}
	if len(g.Overloads) != 2 {
		t.Fatalf("got %d overloads; want 2", len(g.Overloads))
	}
	if g.Overloads[0].Func.Reverse || !g.Overloads[1].Func.Reverse {
		t.Error("forward overload should come first")
	}
	if !g.Overloads[1].Checks[0].Reverse {
		t.Error("reverse operand check should carry the reverse gate")
	}
}

func TestCollect_InheritedDuplicates(t *testing.T) {
	api := loadAPI(t, shapesAPI)
	if n := len(api.Class("Diamond").Functions); n != 2 {
		t.Fatalf("Diamond should inherit ping twice, got %d functions", n)
	}
	g := collect(t, api, "Diamond", "ping")
	if len(g.Overloads) != 1 {
		t.Errorf("got %d overloads; want the duplicate dropped", len(g.Overloads))
	}
}

func TestCollect_Rename(t *testing.T) {
	api := loadAPI(t, shapesAPI)
	function(t, api, "Shape", "hidden()").Mods.Rename = "move"
	g := collect(t, api, "Shape", "move")
	if got := strings.Join(g.Signatures(), " "); got != "move(int,int) hidden()" {
		t.Errorf("signatures = %s", got)
	}
}

func TestCollect_AmbiguousDefault(t *testing.T) {
	api := loadAPI(t, `
module: m
functions:
  - "double area(int x)"
  - "double area(int x, int y = 0)"
`)
	_, err := NewCollector(api).Collect(nil, "area")
	if !errors.Is(err, ErrAmbiguousOverloads) {
		t.Fatalf("got %v; want ErrAmbiguousOverloads", err)
	}
	var amb *AmbiguityError
	if !errors.As(err, &amb) {
		t.Fatalf("error is not an *AmbiguityError: %T", err)
	}
	if amb.ArgCount != 1 || amb.Group != "m.area" {
		t.Errorf("ArgCount = %d, Group = %q", amb.ArgCount, amb.Group)
	}
	want := []string{"area(int)", "area(int,int)"}
	if diff := cmp.Diff(want, amb.Signatures); diff != "" {
		t.Errorf("signatures (-want +got):\n%s", diff)
	}
}

func TestCollect_AmbiguousVariants(t *testing.T) {
	tests := []struct {
		name string
		api  string
	}{
		{"same check key", "module: m\nfunctions:\n  - \"void f(int a)\"\n  - \"void f(long a)\""},
		{"static and instance", "module: m\nclasses:\n  - name: A\n    functions:\n      - \"void f(int a)\"\n      - \"static void f(short a)\""},
		{"empty variadic tail", "module: m\nfunctions:\n  - \"void f(int a)\"\n  - \"void f(int a, int... rest)\""},
		{"both defaulted", "module: m\nfunctions:\n  - \"void f(int a = 0)\"\n  - \"void f(double a = 0)\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := loadAPI(t, tt.api)
			var class *model.Class
			if len(api.Classes) > 0 {
				class = api.Classes[0]
			}
			_, err := NewCollector(api).Collect(class, "f")
			if !errors.Is(err, ErrAmbiguousOverloads) {
				t.Errorf("got %v; want ErrAmbiguousOverloads", err)
			}
		})
	}
}

func TestCollect_DefaultRemovedByRule(t *testing.T) {
	api := loadAPI(t, shapesAPI)
	f := function(t, api, "Shape", "move(int,int)")
	f.Mods.ArgOrCreate(2).RemovedDefault = true
	g := collect(t, api, "Shape", "move")
	if o := g.Overloads[0]; o.MinArgs != 2 || o.MaxArgs != 2 {
		t.Errorf("MinArgs/MaxArgs = %d/%d; want 2/2", o.MinArgs, o.MaxArgs)
	}
}

func TestCollect_RemovedArgument(t *testing.T) {
	api := loadAPI(t, shapesAPI)
	f := function(t, api, "Shape", "move(int,int)")
	f.Mods.ArgOrCreate(1).Removed = true
	f.Mods.ArgOrCreate(1).ReplacedDefault = "10"
	g := collect(t, api, "Shape", "move")
	o := g.Overloads[0]
	if len(o.Args) != 1 || o.Args[0].Index != 1 {
		t.Fatalf("dynamic args = %+v", o.Args)
	}
	if o.MinArgs != 0 || o.MaxArgs != 1 {
		t.Errorf("MinArgs/MaxArgs = %d/%d; want 0/1", o.MinArgs, o.MaxArgs)
	}
}

func TestCollect_UnattachedModuleOperator(t *testing.T) {
	api := loadAPI(t, `
module: m
functions:
  - "int operator+(int a, int b)"
`)
	if len(api.Functions) != 1 {
		t.Fatalf("operator should stay at module scope, got %d functions", len(api.Functions))
	}
	groups, err := NewCollector(api).CollectAll(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("got %d groups; want none", len(groups))
	}
}
