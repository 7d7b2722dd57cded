package executor

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/Knetic/govaluate"

	sageflow "github.com/sageflow-ai/sageflow"
)

// Caller parameters whose string value starts with "=" are treated as
// expressions and evaluated against the business context before the tool
// runs. Variables reference context keys via $key, with optional field and
// index accessors: $inventory_metrics.total_skus, $demand_forecast[0].
//
// Example:
//
//	params := map[string]interface{}{"horizon": "=min($inventory_metrics.total_skus, 12)"}

const expressionPrefix = "="

// ExpressionFunctionRegistry allows registration of custom functions for
// parameter expressions.
type ExpressionFunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]govaluate.ExpressionFunction
}

var globalExprFuncRegistry = &ExpressionFunctionRegistry{functions: builtinFunctions()}

// RegisterExpressionFunction registers a custom function for parameter
// expressions. Registering a name twice overwrites the previous function.
func RegisterExpressionFunction(name string, fn govaluate.ExpressionFunction) {
	globalExprFuncRegistry.mu.Lock()
	defer globalExprFuncRegistry.mu.Unlock()
	globalExprFuncRegistry.functions[name] = fn
}

// getWhitelistedFunctions returns only whitelisted functions for security.
func getWhitelistedFunctions() map[string]govaluate.ExpressionFunction {
	globalExprFuncRegistry.mu.RLock()
	defer globalExprFuncRegistry.mu.RUnlock()

	whitelist := make(map[string]govaluate.ExpressionFunction, len(globalExprFuncRegistry.functions))
	for k, v := range globalExprFuncRegistry.functions {
		whitelist[k] = v
	}
	return whitelist
}

func builtinFunctions() map[string]govaluate.ExpressionFunction {
	return map[string]govaluate.ExpressionFunction{
		"min": func(args ...interface{}) (interface{}, error) {
			return foldFloats("min", args, math.Min)
		},
		"max": func(args ...interface{}) (interface{}, error) {
			return foldFloats("max", args, math.Max)
		},
		"abs": func(args ...interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("abs expects 1 argument, got %d", len(args))
			}
			f, ok := toFloat(args[0])
			if !ok {
				return nil, fmt.Errorf("abs expects a number, got %T", args[0])
			}
			return math.Abs(f), nil
		},
		"round": func(args ...interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("round expects 1 argument, got %d", len(args))
			}
			f, ok := toFloat(args[0])
			if !ok {
				return nil, fmt.Errorf("round expects a number, got %T", args[0])
			}
			return math.Round(f), nil
		},
	}
}

func foldFloats(name string, args []interface{}, fold func(float64, float64) float64) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%s expects at least 1 argument", name)
	}
	acc, ok := toFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("%s expects numbers, got %T", name, args[0])
	}
	for _, arg := range args[1:] {
		f, ok := toFloat(arg)
		if !ok {
			return nil, fmt.Errorf("%s expects numbers, got %T", name, arg)
		}
		acc = fold(acc, f)
	}
	return acc, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// ValidateExpression checks an expression parses, without evaluating it.
func ValidateExpression(expr string) error {
	stripped := strings.TrimPrefix(expr, expressionPrefix)
	replaced := varRe.ReplaceAllStringFunc(stripped, func(matched string) string {
		return flattenVarName(matched)
	})
	_, err := govaluate.NewEvaluableExpressionWithFunctions(replaced, getWhitelistedFunctions())
	return err
}

// isExpression reports whether a parameter value is an expression string.
func isExpression(v interface{}) bool {
	s, ok := v.(string)
	return ok && strings.HasPrefix(s, expressionPrefix)
}

// errUnresolved marks an expression whose variables are not in the context
// yet. Earlier-tier tools see the same parameter map as later ones, so an
// expression over a key produced downstream is omitted rather than fatal.
var errUnresolved = errors.New("expression variable not resolvable")

var (
	varRe = regexp.MustCompile(`\$([a-zA-Z0-9_]+)((?:\.[a-zA-Z0-9_]+|\[[0-9]+\])*)`)
	accRe = regexp.MustCompile(`(\.[a-zA-Z0-9_]+|\[[0-9]+\])`)
)

func flattenVarName(matched string) string {
	name := strings.TrimPrefix(matched, "$")
	name = strings.ReplaceAll(name, ".", "_")
	name = strings.ReplaceAll(name, "[", "_")
	name = strings.ReplaceAll(name, "]", "")
	return name
}

// evaluateExpression resolves $key variables from the context, then hands the
// rewritten expression to govaluate with the whitelisted functions.
func evaluateExpression(expr string, reader sageflow.ContextReader) (interface{}, error) {
	stripped := strings.TrimPrefix(expr, expressionPrefix)

	variables := map[string]interface{}{}
	var resolveErr error
	replaced := varRe.ReplaceAllStringFunc(stripped, func(matched string) string {
		submatches := varRe.FindStringSubmatch(matched)
		key := submatches[1]
		accessors := submatches[2]

		val, ok := reader.Get(key)
		if !ok {
			if resolveErr == nil {
				resolveErr = fmt.Errorf("context key %q: %w", key, errUnresolved)
			}
			return matched
		}

		for _, acc := range accRe.FindAllString(accessors, -1) {
			if strings.HasPrefix(acc, ".") {
				field := acc[1:]
				m, ok := val.(map[string]interface{})
				if !ok {
					resolveErr = fmt.Errorf("cannot access field %q of %T (key %q)", field, val, key)
					return matched
				}
				v, ok := m[field]
				if !ok {
					resolveErr = fmt.Errorf("field %q under context key %q: %w", field, key, errUnresolved)
					return matched
				}
				val = v
				continue
			}
			idx, err := strconv.Atoi(acc[1 : len(acc)-1])
			if err != nil {
				resolveErr = fmt.Errorf("bad index %q in expression", acc)
				return matched
			}
			arr, ok := val.([]interface{})
			if !ok {
				resolveErr = fmt.Errorf("cannot index %T (key %q)", val, key)
				return matched
			}
			if idx < 0 || idx >= len(arr) {
				resolveErr = fmt.Errorf("index %d out of range for context key %q (length %d)", idx, key, len(arr))
				return matched
			}
			val = arr[idx]
		}

		varName := flattenVarName(matched)
		variables[varName] = val
		return varName
	})
	if resolveErr != nil {
		return nil, resolveErr
	}

	evalExpr, err := govaluate.NewEvaluableExpressionWithFunctions(replaced, getWhitelistedFunctions())
	if err != nil {
		return nil, fmt.Errorf("failed to parse expression %q: %w", expr, err)
	}
	result, err := evalExpr.Evaluate(variables)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expr, err)
	}
	return result, nil
}

// resolveParams returns the caller parameters with every expression value
// evaluated against the current context. Literal values pass through. A
// parameter whose variables are not in the context yet is omitted for this
// tool; parse and evaluation faults are returned as errors.
func resolveParams(params map[string]interface{}, reader sageflow.ContextReader) (map[string]interface{}, error) {
	if len(params) == 0 {
		return params, nil
	}
	resolved := make(map[string]interface{}, len(params))
	for name, value := range params {
		if !isExpression(value) {
			resolved[name] = value
			continue
		}
		v, err := evaluateExpression(value.(string), reader)
		if errors.Is(err, errUnresolved) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		resolved[name] = v
	}
	return resolved, nil
}
