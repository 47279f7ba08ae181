package message

// RequireString asserts that msg[name] exists and is a JSON string.
func RequireString(msg map[string]any, name string) (string, error) {
	v, err := requireField(msg, name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid("the %q field is expected to be of type string", name)
	}
	return s, nil
}

// RequireObject asserts that msg[name] exists and is a JSON object.
func RequireObject(msg map[string]any, name string) (map[string]any, error) {
	v, err := requireField(msg, name)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, invalid("the %q field is expected to be of type object", name)
	}
	return obj, nil
}

// RequireInt asserts that msg[name] exists and is a JSON number with no
// fractional part (JSON has no distinct integer type; encoding/json
// decodes all numbers as float64).
func RequireInt(msg map[string]any, name string) (int64, error) {
	v, err := requireField(msg, name)
	if err != nil {
		return 0, err
	}
	n, ok := v.(float64)
	if !ok || n != float64(int64(n)) {
		return 0, invalid("the %q field is expected to be of type number_integer", name)
	}
	return int64(n), nil
}

// RequireArray asserts that msg[name] exists and is a JSON array.
func RequireArray(msg map[string]any, name string) ([]any, error) {
	v, err := requireField(msg, name)
	if err != nil {
		return nil, err
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, invalid("the %q field is expected to be of type array", name)
	}
	return arr, nil
}

// requireField is the single field-presence check every Require* helper
// builds on; its error already names the missing field.
func requireField(msg map[string]any, name string) (any, error) {
	v, ok := msg[name]
	if !ok {
		return nil, invalid("the given message does not specify a %q field", name)
	}
	return v, nil
}
