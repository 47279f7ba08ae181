package operation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseScriptBasic(t *testing.T) {
	body := map[string]any{
		"sequence": []any{
			map[string]any{"function": "findUserByName"},
			map[string]any{"function": "getUserName"},
		},
		"save_results": map[string]any{"found": 0.0},
	}
	script, err := ParseScript(body)
	require.NoError(t, err)
	require.Len(t, script.Sequence, 2)
	require.Equal(t, 0, script.SaveResults["found"])
}

func TestOperationSubstitutionScenario(t *testing.T) {
	body := map[string]any{
		"sequence": []any{
			map[string]any{
				"function":  "findUserByName",
				"parameter": map[string]any{"connection": 13.0, "user_name": "Local user"},
			},
			map[string]any{
				"function":  "getUserName",
				"parameter": map[string]any{"connection": 13.0, "user_id": "${results.0.response.return_value}"},
			},
		},
	}
	script, err := ParseScript(body)
	require.NoError(t, err)

	calls := 0
	runCall := func(msg map[string]any) (map[string]any, error) {
		calls++
		inner := msg["message"].(map[string]any)
		switch inner["function"] {
		case "findUserByName":
			return map[string]any{
				"response_type": "api_call",
				"response":      map[string]any{"function": "findUserByName", "status": "executed", "return_value": 5.0},
			}, nil
		case "getUserName":
			params := inner["parameter"].(map[string]any)
			require.EqualValues(t, 5.0, params["user_id"])
			return map[string]any{
				"response_type": "api_call",
				"response":      map[string]any{"function": "getUserName", "status": "executed", "return_value": "Local user"},
			}, nil
		default:
			t.Fatalf("unexpected function %v", inner["function"])
			return nil, nil
		}
	}

	final, err := Run(script, runCall)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	response := final["response"].(map[string]any)
	require.Equal(t, "Local user", response["return_value"])
}

func TestOperationAbortsOnErrorReply(t *testing.T) {
	body := map[string]any{
		"sequence": []any{
			map[string]any{"function": "doesNotExist"},
			map[string]any{"function": "getUserName"},
		},
	}
	script, err := ParseScript(body)
	require.NoError(t, err)

	calls := 0
	runCall := func(msg map[string]any) (map[string]any, error) {
		calls++
		return map[string]any{
			"response_type": "error",
			"response":      map[string]any{"error_message": "unknown function"},
		}, nil
	}

	_, err = Run(script, runCall)
	require.Error(t, err)
	require.Equal(t, 1, calls)

	var opErr *Error
	require.ErrorAs(t, err, &opErr)
	require.Contains(t, opErr.Reason, "unknown function")
}

func TestSubstitutionReferencingFutureCallFails(t *testing.T) {
	body := map[string]any{
		"sequence": []any{
			map[string]any{"function": "f", "parameter": map[string]any{"x": "${results.0.y}"}},
		},
	}
	script, err := ParseScript(body)
	require.NoError(t, err)

	_, err = Run(script, func(msg map[string]any) (map[string]any, error) {
		t.Fatal("runCall should not be reached")
		return nil, nil
	})
	require.Error(t, err)
}

func TestSubstitutionMissingFieldFails(t *testing.T) {
	body := map[string]any{
		"sequence": []any{
			map[string]any{"function": "first"},
			map[string]any{"function": "second", "parameter": map[string]any{"x": "${results.0.response.nope}"}},
		},
	}
	script, err := ParseScript(body)
	require.NoError(t, err)

	_, err = Run(script, func(msg map[string]any) (map[string]any, error) {
		return map[string]any{
			"response_type": "api_call",
			"response":      map[string]any{"function": "first", "status": "executed"},
		}, nil
	})
	require.Error(t, err)
}

func TestSubstringSubstitutionCoercesToString(t *testing.T) {
	body := map[string]any{
		"sequence": []any{
			map[string]any{"function": "first"},
			map[string]any{"function": "second", "parameter": map[string]any{"label": "id=${results.0.response.return_value}!"}},
		},
	}
	script, err := ParseScript(body)
	require.NoError(t, err)

	var capturedLabel string
	_, err = Run(script, func(msg map[string]any) (map[string]any, error) {
		inner := msg["message"].(map[string]any)
		if inner["function"] == "second" {
			capturedLabel = inner["parameter"].(map[string]any)["label"].(string)
		}
		return map[string]any{
			"response_type": "api_call",
			"response":      map[string]any{"function": inner["function"], "status": "executed", "return_value": 5.0},
		}, nil
	})
	require.NoError(t, err)
	require.Equal(t, "id=5!", capturedLabel)
}

func TestSavedNameSubstitution(t *testing.T) {
	body := map[string]any{
		"sequence": []any{
			map[string]any{"function": "first"},
			map[string]any{"function": "second", "parameter": map[string]any{"x": "${found.response.return_value}"}},
		},
		"save_results": map[string]any{"found": 0.0},
	}
	script, err := ParseScript(body)
	require.NoError(t, err)

	_, err = Run(script, func(msg map[string]any) (map[string]any, error) {
		inner := msg["message"].(map[string]any)
		if inner["function"] == "second" {
			params := inner["parameter"].(map[string]any)
			require.EqualValues(t, 42.0, params["x"])
		}
		return map[string]any{
			"response_type": "api_call",
			"response":      map[string]any{"function": inner["function"], "status": "executed", "return_value": 42.0},
		}, nil
	})
	require.NoError(t, err)
}
