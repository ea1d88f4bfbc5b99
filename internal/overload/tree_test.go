package overload

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/funvibe/bindgen/internal/model"
)

func buildTree(t testing.TB, g *Group) *Tree {
	t.Helper()
	tree, err := Build(g)
	if err != nil {
		t.Fatalf("Build(%s): %v", g.FullName(), err)
	}
	return tree
}

// exactArgs returns host values matching each declared argument of o
// exactly. A variadic tail is left empty.
func exactArgs(o *Overload) []Value {
	var out []Value
	for _, chk := range o.Checks {
		if chk.Variadic {
			break
		}
		out = append(out, exactValue(chk))
	}
	return out
}

func exactValue(chk Check) Value {
	switch chk.Kind {
	case CheckBool:
		return Value{Kind: ValueBool}
	case CheckFloat:
		return Value{Kind: ValueFloat}
	case CheckInteger:
		return Value{Kind: ValueInt}
	case CheckString:
		return Value{Kind: ValueStr}
	case CheckContainer:
		if strings.Contains(chk.Type, "map<") {
			return Value{Kind: ValueDict}
		}
		return Value{Kind: ValueList}
	case CheckHostObject:
		return Value{Kind: ValueCallable}
	}
	return Instance(strings.TrimPrefix(chk.Type, "::"))
}

func args(kinds ...ValueKind) []Value {
	out := make([]Value, len(kinds))
	for i, k := range kinds {
		out[i] = Value{Kind: k}
	}
	return out
}

func TestResolve_Scenarios(t *testing.T) {
	api := loadAPI(t, shapesAPI+`  - "double measure(double x)"
  - "double measure(Shape* s)"
  - "double measure(int w, int h = 0)"
  - "double area(int w, int h)"
`)
	area := buildTree(t, collect(t, api, "", "area"))
	if got := strings.Join(area.Group.Signatures(), " "); got != "area(int) area(double) area(Shape*) area(int,int)" {
		t.Fatalf("area signatures = %s", got)
	}
	measure := buildTree(t, collect(t, api, "", "measure"))

	tests := []struct {
		name string
		tree *Tree
		args []Value
		want int
	}{
		{"integer picks area(int)", area, args(ValueInt), 0},
		{"float picks area(double)", area, args(ValueFloat), 1},
		{"shape picks area(Shape*)", area, []Value{Instance("Shape")}, 2},
		{"subclass picks area(Shape*)", area, []Value{Instance("Circle")}, 2},
		{"null pointer", area, args(ValueNone), 2},
		{"bool is an integer", area, args(ValueBool), 0},
		{"two integers", area, args(ValueInt, ValueInt), 3},
		{"string falls through", area, args(ValueStr), -1},
		{"too many", area, args(ValueInt, ValueInt, ValueInt), -1},
		{"no arguments", area, nil, -1},
		{"second argument mismatch", area, args(ValueInt, ValueStr), -1},

		{"defaulted pair", measure, args(ValueInt, ValueInt), 2},
		{"defaulted truncation", measure, args(ValueInt), 2},
		{"float does not truncate", measure, args(ValueFloat, ValueInt), -1},
		{"float alone", measure, args(ValueFloat), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tree.Resolve(api, CallSite{Args: tt.args}); got != tt.want {
				t.Errorf("Resolve() = %d; want %d", got, tt.want)
			}
		})
	}
}

func TestBuild_AmbiguousDefaultRejectedAtCollection(t *testing.T) {
	api := loadAPI(t, shapesAPI+`  - "double area(int w, int h = 0)"
`)
	_, err := NewCollector(api).Collect(nil, "area")
	var amb *AmbiguityError
	if !errors.As(err, &amb) {
		t.Fatalf("got %v; want *AmbiguityError", err)
	}
	if amb.ArgCount != 1 {
		t.Errorf("ArgCount = %d; want 1", amb.ArgCount)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	api := loadAPI(t, shapesAPI)
	for _, name := range []string{"area"} {
		first := buildTree(t, collect(t, api, "", name))
		second := buildTree(t, collect(t, api, "", name))
		if diff := cmp.Diff(first.Nodes, second.Nodes); diff != "" {
			t.Errorf("%s: trees differ (-first +second):\n%s", name, diff)
		}
	}
}

func TestBuild_Structure(t *testing.T) {
	api := loadAPI(t, shapesAPI+`  - "double area(int w, int h)"
`)
	tree := buildTree(t, collect(t, api, "", "area"))

	root := tree.Root()
	if root.Pos != -1 || root.Parent != NoNode || root.Exact != -1 {
		t.Fatalf("root = %+v", root)
	}
	var keys []string
	for _, id := range root.Children {
		keys = append(keys, tree.Node(id).Check.Key())
	}
	if diff := cmp.Diff([]string{"float", "int", "class:::Shape?"}, keys); diff != "" {
		t.Fatalf("root children (-want +got):\n%s", diff)
	}

	intNode := tree.Node(root.Children[1])
	if intNode.IsTerminal() {
		t.Fatal("int node holds area(int) and area(int,int)")
	}
	if intNode.Exact != 0 {
		t.Errorf("int node Exact = %d; want 0", intNode.Exact)
	}
	if len(intNode.Children) != 1 || !tree.Node(intNode.Children[0]).IsTerminal() {
		t.Errorf("int node children = %v", intNode.Children)
	}
	leaf := intNode.Children[0]
	if diff := cmp.Diff([]NodeID{0, root.Children[1], leaf}, tree.Path(leaf)); diff != "" {
		t.Errorf("Path (-want +got):\n%s", diff)
	}
	if !tree.NumericAmbiguous(root.Children[0]) || tree.NumericAmbiguous(root.Children[2]) {
		t.Error("float competes with int; the Shape check does not")
	}
	if tree.NumericAmbiguous(leaf) {
		t.Error("a lone numeric check is not ambiguous")
	}
}

func TestBuild_PartitionInvariant(t *testing.T) {
	api := loadAPI(t, shapesAPI+`  - "double area(int w, int h)"
  - "double area(int w, const char* unit, Color c = Red)"
  - "double area(Circle* c, int... rest)"
`)
	tree := buildTree(t, collect(t, api, "", "area"))
	for _, n := range tree.Nodes {
		if n.IsTerminal() {
			continue
		}
		var union []int
		for _, id := range n.Children {
			child := tree.Node(id)
			if child.Parent != n.ID || child.Pos != n.Pos+1 {
				t.Errorf("node %d: bad child %+v", n.ID, child)
			}
			union = append(union, child.Overloads...)
		}
		if n.Exact >= 0 {
			union = append(union, n.Exact)
		}
		slices.Sort(union)
		union = slices.Compact(union)
		if diff := cmp.Diff(n.Overloads, union); diff != "" {
			t.Errorf("node %d: children and exact do not cover its overloads (-want +got):\n%s", n.ID, diff)
		}
	}
}

func TestBuild_Coverage(t *testing.T) {
	api := loadAPI(t, shapesAPI+`  - "double area(int w, int h)"
  - "double area(int w, const char* unit, Color c = Red)"
  - "double area(Circle* c, int... rest)"
  - "double area(const Point& p)"
  - "double area(Size s, bool fill)"
  - "double area(Alignment a)"
  - "double area(PyObject* o, int n)"
`)
	tree := buildTree(t, collect(t, api, "", "area"))
	for _, o := range tree.Group.Overloads {
		site := CallSite{Args: exactArgs(o)}
		if got := tree.Resolve(api, site); got != o.Index {
			t.Errorf("%s: exact arguments resolved to %d; want %d", o.Signature(), got, o.Index)
		}
	}
}

func TestResolve_Variadic(t *testing.T) {
	api := loadAPI(t, shapesAPI+`  - "void sum(int first, int... rest)"
  - "void sum(int first, const char* label)"
`)
	tree := buildTree(t, collect(t, api, "", "sum"))
	if tree.Group.MaxArgs() != -1 {
		t.Errorf("MaxArgs = %d; want unbounded", tree.Group.MaxArgs())
	}
	tests := []struct {
		args []Value
		want int
	}{
		{args(ValueInt), 0},
		{args(ValueInt, ValueStr), 1},
		{args(ValueInt, ValueInt), 0},
		{args(ValueInt, ValueInt, ValueBool, ValueInt), 0},
		{args(ValueInt, ValueInt, ValueStr), -1},
		{nil, -1},
	}
	for _, tt := range tests {
		if got := tree.Resolve(api, CallSite{Args: tt.args}); got != tt.want {
			t.Errorf("Resolve(%v) = %d; want %d", tt.args, got, tt.want)
		}
	}
	// the variadic tail is tried after every fixed check
	first := tree.Node(tree.Root().Children[0])
	last := tree.Node(first.Children[len(first.Children)-1])
	if !last.Check.Variadic {
		t.Errorf("last child = %s; want the variadic tail", last.Check.Key())
	}
}

func TestResolve_CountMismatchFallsThrough(t *testing.T) {
	api := loadAPI(t, shapesAPI+`  - "int total(int... values)"
  - "int total(int first, const char* label)"
  - "void span(int a, int b)"
  - "void span(int a, const char* unit, int b)"
`)
	total := buildTree(t, collect(t, api, "", "total"))
	span := buildTree(t, collect(t, api, "", "span"))
	if lo, hi := total.ArgBounds(total.Root().Children[0]); lo != 2 || hi != 2 {
		t.Errorf("ArgBounds(int) = %d, %d; want 2, 2", lo, hi)
	}
	if lo, hi := span.ArgBounds(0); lo != 2 || hi != 3 {
		t.Errorf("ArgBounds(root) = %d, %d; want 2, 3", lo, hi)
	}

	tests := []struct {
		name string
		tree *Tree
		args []Value
		want int
	}{
		{"empty tail", total, nil, 0},
		{"one value", total, args(ValueInt), 0},
		{"two values", total, args(ValueInt, ValueInt), 0},
		{"three values", total, args(ValueInt, ValueInt, ValueInt), 0},
		{"labelled", total, args(ValueInt, ValueStr), 1},
		{"labelled with extra", total, args(ValueInt, ValueStr, ValueInt), -1},
		{"string first", total, args(ValueStr), -1},
		{"two ints", span, args(ValueInt, ValueInt), 0},
		{"with unit", span, args(ValueInt, ValueStr, ValueInt), 1},
		{"unit without count", span, args(ValueInt, ValueStr), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tree.Resolve(api, CallSite{Args: tt.args}); got != tt.want {
				t.Errorf("Resolve(%v) = %d; want %d", tt.args, got, tt.want)
			}
		})
	}
}

func TestResolve_ReverseOperator(t *testing.T) {
	api := loadAPI(t, shapesAPI)
	tree := buildTree(t, collect(t, api, "Point", "__mul__"))
	if got := tree.Resolve(api, CallSite{Args: args(ValueInt)}); got != 0 {
		t.Errorf("forward call resolved to %d; want 0", got)
	}
	if got := tree.Resolve(api, CallSite{Args: args(ValueInt), Reverse: true}); got != 1 {
		t.Errorf("reverse call resolved to %d; want 1", got)
	}
	if got := tree.Resolve(api, CallSite{Args: args(ValueStr), Reverse: true}); got != -1 {
		t.Errorf("reverse call with a string resolved to %d", got)
	}
}

func TestResolve_StaticAndInstance(t *testing.T) {
	api := loadAPI(t, shapesAPI)
	tree := buildTree(t, collect(t, api, "Shape", "create"))
	tests := []struct {
		name string
		site CallSite
		want int
	}{
		{"static through class", CallSite{Args: args(ValueInt)}, 0},
		{"static through instance", CallSite{Args: args(ValueInt), HasSelf: true}, 0},
		{"instance through instance", CallSite{Args: []Value{Instance("Point")}, HasSelf: true}, 1},
		{"instance through class", CallSite{Args: []Value{Instance("Point")}}, -1},
		{"implicit size", CallSite{Args: []Value{Instance("Size")}, HasSelf: true}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tree.Resolve(api, tt.site); got != tt.want {
				t.Errorf("Resolve() = %d; want %d", got, tt.want)
			}
		})
	}
}

func TestResolve_ImplicitConversions(t *testing.T) {
	api := loadAPI(t, shapesAPI+`  - "void place(const Rect& r)"
  - "void place(const Point& p)"
`)
	tree := buildTree(t, collect(t, api, "", "place"))
	root := tree.Root()
	if got := tree.Node(root.Children[0]).Check.Type; got != "::Point" {
		t.Fatalf("first child = %s; want the shallower conversion first", got)
	}
	tests := []struct {
		arg  Value
		want int
	}{
		{Instance("Rect"), 0},
		{Instance("Point"), 1},
		{Instance("Size"), 1},
		{Value{Kind: ValueInt}, 1},
		{Value{Kind: ValueFloat}, -1},
	}
	for _, tt := range tests {
		if got := tree.Resolve(api, CallSite{Args: []Value{tt.arg}}); got != tt.want {
			t.Errorf("Resolve(%v) = %d; want %d", tt.arg, got, tt.want)
		}
	}
}

func TestResolve_LoneNumericWidening(t *testing.T) {
	api := loadAPI(t, shapesAPI+`  - "void scale(double f)"
  - "void scale(Shape* s)"
  - "void flag(bool on)"
`)
	scale := buildTree(t, collect(t, api, "", "scale"))
	if got := scale.Resolve(api, CallSite{Args: args(ValueInt)}); got != 0 {
		t.Errorf("lone float should accept an integer, got %d", got)
	}
	flag := buildTree(t, collect(t, api, "", "flag"))
	if got := flag.Resolve(api, CallSite{Args: args(ValueInt)}); got != 0 {
		t.Errorf("lone bool should accept an integer, got %d", got)
	}
	if got := flag.Resolve(api, CallSite{Args: args(ValueFloat)}); got != -1 {
		t.Errorf("bool should reject a float, got %d", got)
	}
}

func TestCompareChecks(t *testing.T) {
	ordered := []Check{
		{Kind: CheckEnum, Type: "::Color"},
		{Kind: CheckFlags, Type: "::Alignment"},
		{Kind: CheckBool},
		{Kind: CheckFloat},
		{Kind: CheckInteger},
		{Kind: CheckObject, Type: "::Circle", Inherit: 1},
		{Kind: CheckObject, Type: "::Shape"},
		{Kind: CheckValue, Type: "::Point", Implicit: true, Depth: 1},
		{Kind: CheckValue, Type: "::Rect", Implicit: true, Depth: 2},
		{Kind: CheckHostObject},
		{Kind: CheckInteger, Variadic: true},
	}
	for i := range ordered {
		for j := range ordered {
			got := CompareChecks(ordered[i], ordered[j])
			switch {
			case i < j && got >= 0, i > j && got <= 0, i == j && got != 0:
				t.Errorf("CompareChecks(%s, %s) = %d", ordered[i].Key(), ordered[j].Key(), got)
			}
		}
	}

	// equal ranks keep their input order
	same := []Check{
		{Kind: CheckString},
		{Kind: CheckContainer, Type: "::std::vector<int>"},
		{Kind: CheckObject, Type: "::Shape"},
	}
	sorted := slices.Clone(same)
	slices.SortStableFunc(sorted, CompareChecks)
	if diff := cmp.Diff(same, sorted); diff != "" {
		t.Errorf("stable order changed (-want +got):\n%s", diff)
	}
}

func TestBuild_EmptyGroup(t *testing.T) {
	_, err := Build(&Group{Name: "f", Scope: "m"})
	if !errors.Is(err, ErrEmptyGroup) {
		t.Errorf("got %v; want ErrEmptyGroup", err)
	}
}

func TestTreeDump(t *testing.T) {
	api := loadAPI(t, shapesAPI)
	tree := buildTree(t, collect(t, api, "", "area"))
	out, err := tree.Dump()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"group: geometry.area",
		"kind: function",
		"min_args: 1",
		"max_args: 1",
		"- area(Shape*)",
		"overloads: [0, 1, 2]",
		"children: [1, 2, 3]",
	} {
		if !strings.Contains(string(out), want) {
			t.Errorf("dump missing %q:\n%s", want, out)
		}
	}
}

func TestAccepts_Containers(t *testing.T) {
	api := loadAPI(t, shapesAPI)
	list := TypeCheck(api, mustType(t, api, "std::vector<int>"))
	dict := TypeCheck(api, mustType(t, api, "std::map<std::string, int>"))
	if !Accepts(api, list, Value{Kind: ValueList}, false) || Accepts(api, list, Value{Kind: ValueDict}, false) {
		t.Error("vector should accept lists only")
	}
	if !Accepts(api, dict, Value{Kind: ValueDict}, false) || Accepts(api, dict, Value{Kind: ValueList}, false) {
		t.Error("map should accept dicts only")
	}
	seq := ReplacedCheck("PySequence")
	if !Accepts(api, seq, Value{Kind: ValueList}, false) {
		t.Error("PySequence should accept lists")
	}
	if ReplacedCheck("PyObject *").Kind != CheckHostObject {
		t.Error("PyObject replacement should be the generic host object check")
	}
}

func mustType(t testing.TB, api *model.API, src string) *model.Type {
	t.Helper()
	typ, err := model.ParseType(src)
	if err != nil {
		t.Fatalf("ParseType(%q): %v", src, err)
	}
	api.ResolveType(typ)
	return typ
}
