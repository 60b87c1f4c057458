package formula

import (
	"fmt"
	"math"
	"strings"
)

type function struct {
	minArgs int
	maxArgs int // -1 means variadic
	call    func(args []interface{}) (interface{}, error)
}

func (f function) arity() string {
	switch {
	case f.maxArgs < 0:
		return fmt.Sprintf("at least %d arguments", f.minArgs)
	case f.minArgs == f.maxArgs:
		return fmt.Sprintf("%d arguments", f.minArgs)
	default:
		return fmt.Sprintf("%d to %d arguments", f.minArgs, f.maxArgs)
	}
}

// functions is the complete whitelist; anything else fails at parse time.
var functions = map[string]function{
	"SUM": {minArgs: 1, maxArgs: -1, call: func(args []interface{}) (interface{}, error) {
		total := 0.0
		for _, arg := range args {
			total += ToNumber(arg)
		}
		return total, nil
	}},
	"AVG": {minArgs: 1, maxArgs: -1, call: func(args []interface{}) (interface{}, error) {
		total := 0.0
		for _, arg := range args {
			total += ToNumber(arg)
		}
		return total / float64(len(args)), nil
	}},
	"MIN": {minArgs: 1, maxArgs: -1, call: func(args []interface{}) (interface{}, error) {
		result := ToNumber(args[0])
		for _, arg := range args[1:] {
			result = math.Min(result, ToNumber(arg))
		}
		return result, nil
	}},
	"MAX": {minArgs: 1, maxArgs: -1, call: func(args []interface{}) (interface{}, error) {
		result := ToNumber(args[0])
		for _, arg := range args[1:] {
			result = math.Max(result, ToNumber(arg))
		}
		return result, nil
	}},
	"ROUND": {minArgs: 1, maxArgs: 2, call: func(args []interface{}) (interface{}, error) {
		digits := 0.0
		if len(args) > 1 {
			digits = math.Trunc(ToNumber(args[1]))
		}
		scale := math.Pow(10, digits)
		return math.Round(ToNumber(args[0])*scale) / scale, nil
	}},
	"ABS": {minArgs: 1, maxArgs: 1, call: func(args []interface{}) (interface{}, error) {
		return math.Abs(ToNumber(args[0])), nil
	}},
	// IF is evaluated lazily in callNode.eval; this entry only carries its arity.
	"IF": {minArgs: 2, maxArgs: 3, call: nil},
	"CONCAT": {minArgs: 1, maxArgs: -1, call: func(args []interface{}) (interface{}, error) {
		var b strings.Builder
		for _, arg := range args {
			b.WriteString(ToString(arg))
		}
		return b.String(), nil
	}},
	"UPPER": {minArgs: 1, maxArgs: 1, call: func(args []interface{}) (interface{}, error) {
		return strings.ToUpper(ToString(args[0])), nil
	}},
	"LOWER": {minArgs: 1, maxArgs: 1, call: func(args []interface{}) (interface{}, error) {
		return strings.ToLower(ToString(args[0])), nil
	}},
	"TRIM": {minArgs: 1, maxArgs: 1, call: func(args []interface{}) (interface{}, error) {
		return strings.TrimSpace(ToString(args[0])), nil
	}},
	"LEN": {minArgs: 1, maxArgs: 1, call: func(args []interface{}) (interface{}, error) {
		return float64(len([]rune(ToString(args[0])))), nil
	}},
	"COALESCE": {minArgs: 1, maxArgs: -1, call: func(args []interface{}) (interface{}, error) {
		for _, arg := range args {
			if ToString(arg) != "" {
				return arg, nil
			}
		}
		return "", nil
	}},
}
