package formula

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrUnknownFunction  = errors.New("formula: unknown function")
	ErrUnknownReference = errors.New("formula: unknown column reference")
	ErrArgumentCount    = errors.New("formula: wrong number of arguments")
	ErrDivisionByZero   = errors.New("formula: division by zero")
	ErrNotFinite        = errors.New("formula: result is not a finite number")
)

// Env maps column or field names to their current values.
type Env map[string]interface{}

func (env Env) lookup(name string) (interface{}, bool) {
	if value, ok := env[name]; ok {
		return value, true
	}
	for key, value := range env {
		if strings.EqualFold(key, name) {
			return value, true
		}
	}
	return nil, false
}

// Eval runs the expression against vars. Results are float64, string or bool;
// a numeric result that overflows to an infinity fails with ErrNotFinite.
func (e *Expression) Eval(vars map[string]interface{}) (interface{}, error) {
	value, err := e.root.eval(Env(vars))
	if err != nil {
		return nil, err
	}
	if n, ok := value.(float64); ok && !finite(n) {
		return nil, ErrNotFinite
	}
	return value, nil
}

// Evaluate parses and evaluates src in one step.
func Evaluate(src string, vars map[string]interface{}) (interface{}, error) {
	expr, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return expr.Eval(vars)
}

func (n *literalNode) eval(Env) (interface{}, error) {
	return n.value, nil
}

func (n *refNode) eval(env Env) (interface{}, error) {
	value, ok := env.lookup(n.name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReference, n.name)
	}
	switch v := value.(type) {
	case nil:
		return "", nil
	case float64, string, bool:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	default:
		return fmt.Sprint(v), nil
	}
}

func (n *unaryNode) eval(env Env) (interface{}, error) {
	value, err := n.operand.eval(env)
	if err != nil {
		return nil, err
	}
	number := ToNumber(value)
	if n.op == "-" {
		return -number, nil
	}
	return number, nil
}

func (n *binaryNode) eval(env Env) (interface{}, error) {
	left, err := n.left.eval(env)
	if err != nil {
		return nil, err
	}
	right, err := n.right.eval(env)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "&":
		return ToString(left) + ToString(right), nil
	case "+":
		return ToNumber(left) + ToNumber(right), nil
	case "-":
		return ToNumber(left) - ToNumber(right), nil
	case "*":
		return ToNumber(left) * ToNumber(right), nil
	case "/":
		divisor := ToNumber(right)
		if divisor == 0 {
			return nil, ErrDivisionByZero
		}
		return ToNumber(left) / divisor, nil
	case "%":
		divisor := ToNumber(right)
		if divisor == 0 {
			return nil, ErrDivisionByZero
		}
		return math.Mod(ToNumber(left), divisor), nil
	}

	cmp := compare(left, right)
	switch n.op {
	case "=":
		return cmp == 0, nil
	case "<>":
		return cmp != 0, nil
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	}
	return nil, fmt.Errorf("formula: unsupported operator %q", n.op)
}

func (n *callNode) eval(env Env) (interface{}, error) {
	// IF only evaluates the branch it takes.
	if n.name == "IF" {
		cond, err := n.args[0].eval(env)
		if err != nil {
			return nil, err
		}
		if ToBool(cond) {
			return n.args[1].eval(env)
		}
		if len(n.args) > 2 {
			return n.args[2].eval(env)
		}
		return false, nil
	}

	args := make([]interface{}, len(n.args))
	for i, arg := range n.args {
		value, err := arg.eval(env)
		if err != nil {
			return nil, err
		}
		args[i] = value
	}
	return functions[n.name].call(args)
}

func compare(left, right interface{}) int {
	ln, lok := numeric(left)
	rn, rok := numeric(right)
	if lok && rok {
		switch {
		case ln < rn:
			return -1
		case ln > rn:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(strings.ToLower(ToString(left)), strings.ToLower(ToString(right)))
}

func numeric(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		return ParseNumber(v)
	}
	return 0, false
}

// ParseNumber accepts both "1234.5" and the comma-decimal "1234,5" spellings.
func ParseNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, " ", "")
	if value, err := strconv.ParseFloat(s, 64); err == nil {
		if !finite(value) {
			return 0, false
		}
		return value, true
	}
	if !strings.Contains(s, ",") {
		return 0, false
	}
	// whichever separator comes last is the decimal one: 1.234,5 vs 1,234.5
	var normalized string
	if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
		normalized = strings.ReplaceAll(s, ".", "")
		normalized = strings.ReplaceAll(normalized, ",", ".")
	} else {
		normalized = strings.ReplaceAll(s, ",", "")
	}
	if value, err := strconv.ParseFloat(normalized, 64); err == nil && finite(value) {
		return value, true
	}
	return 0, false
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ToNumber coerces a value; anything non-numeric is 0.
func ToNumber(value interface{}) float64 {
	n, _ := numeric(value)
	return n
}

func ToString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(v)
	}
}

func ToBool(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		switch strings.ToUpper(strings.TrimSpace(v)) {
		case "", "FALSE", "0":
			return false
		}
		return true
	}
	return false
}
