package tools

import (
	sageflow "github.com/sageflow-ai/sageflow"
)

func tenantFrom(bc sageflow.ContextReader, tool string) (string, *sageflow.ToolError) {
	v, ok := bc.Get(KeyTenant)
	if !ok {
		return "", sageflow.NewInputMissingError(tool, KeyTenant)
	}
	tenant, ok := v.(string)
	if !ok || tenant == "" {
		return "", sageflow.NewInputMissingError(tool, "tenant identifier")
	}
	return tenant, nil
}

func metricsFrom(bc sageflow.ContextReader, tool, key string) (map[string]interface{}, *sageflow.ToolError) {
	v, ok := bc.Get(key)
	if !ok {
		return nil, sageflow.NewInputMissingError(tool, key)
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, sageflow.NewComputeError(tool, "context key "+key+" is not a metrics map", nil)
	}
	return m, nil
}

func asFloat(v interface{}) (float64, bool) {
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

func numField(rec sageflow.Record, field string) (float64, bool) {
	v, ok := rec[field]
	if !ok {
		return 0, false
	}
	return asFloat(v)
}

func stringField(rec sageflow.Record, field string) (string, bool) {
	v, ok := rec[field]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// floatsOf converts a stored history series back to []float64. Series cross
// the context as []interface{} so they stay expression- and JSON-friendly.
func floatsOf(v interface{}) []float64 {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(raw))
	for _, item := range raw {
		f, ok := asFloat(item)
		if !ok {
			return nil
		}
		out = append(out, f)
	}
	return out
}

func interfacesOf(values []float64) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
