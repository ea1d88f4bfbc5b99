package cppgen

import (
	"fmt"
	"strings"

	"github.com/funvibe/bindgen/internal/overload"
)

// CheckExpr renders the runtime predicate for chk applied to the host object
// expression py. Numeric checks competing with a sibling are strict; lone
// ones accept any integer-like value. The generic host object check renders
// as "".
func CheckExpr(chk overload.Check, py string, ambiguous bool) string {
	switch chk.Kind {
	case overload.CheckBool:
		if ambiguous {
			return fmt.Sprintf("PyBool_Check(%s)", py)
		}
		return fmt.Sprintf("PyLong_Check(%s)", py)
	case overload.CheckFloat:
		if ambiguous {
			return fmt.Sprintf("PyFloat_Check(%s)", py)
		}
		return fmt.Sprintf("(PyFloat_Check(%s) || PyLong_Check(%s))", py, py)
	case overload.CheckInteger:
		return fmt.Sprintf("PyLong_Check(%s)", py)
	case overload.CheckString:
		return fmt.Sprintf("PyUnicode_Check(%s)", py)
	case overload.CheckEnum, overload.CheckFlags:
		return fmt.Sprintf("%s(%s)", instantiate(rt("Enum::check"), chk.Type), py)
	case overload.CheckContainer:
		return fmt.Sprintf("%s::isConvertible(%s)", instantiate(rt("Converter"), chk.Type), py)
	case overload.CheckObject, overload.CheckValue:
		pred := fmt.Sprintf("%s(%s)", instantiate(rt("Object::checkType"), chk.Type), py)
		if chk.Kind == overload.CheckValue && chk.Implicit {
			pred = fmt.Sprintf("%s::isConvertible(%s)", instantiate(rt("Converter"), chk.Type), py)
		}
		if chk.Nullable {
			return fmt.Sprintf("(%s == Py_None || %s)", py, pred)
		}
		return pred
	case overload.CheckReplaced:
		return replacedCheck(chk.Type, py)
	}
	return ""
}

func replacedCheck(typ, py string) string {
	switch strings.TrimSpace(strings.TrimSuffix(typ, "*")) {
	case "PySequence":
		return fmt.Sprintf("PySequence_Check(%s)", py)
	case "PyCallable":
		return fmt.Sprintf("PyCallable_Check(%s)", py)
	case "PyUnicode", "str":
		return fmt.Sprintf("PyUnicode_Check(%s)", py)
	case "PyDict":
		return fmt.Sprintf("PyDict_Check(%s)", py)
	}
	return fmt.Sprintf("%s::isConvertible(%s)", instantiate(rt("Converter"), typ), py)
}

// tailCheck renders the check of every host argument from position start on.
func tailCheck(chk overload.Check, start int) string {
	expr := CheckExpr(chk, "item", false)
	if expr == "" {
		expr = "true"
	}
	return fmt.Sprintf("%s(args, %d, [](PyObject* item) { return %s; })", rt("checkTail"), start, expr)
}
