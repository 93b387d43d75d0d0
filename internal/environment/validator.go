// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package environment

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
)

// ValidateValue fails with a configuration error naming the variable when
// value is nil, an empty or blank string, or a non-finite number. Zero is
// a valid value.
func ValidateValue(name string, value any) error {
	if !isPresent(value) {
		return missingVariable(name)
	}
	return nil
}

func isPresent(value any) bool {
	if value == nil {
		return false
	}

	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v) != ""
	case float64:
		return !math.IsNaN(v) && !math.IsInf(v, 0)
	case float32:
		f := float64(v)
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return isPresent(rv.Elem().Interface())
	case reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	default:
		return true
	}
}

// ValidateRequired checks every required variable of the selected source and
// reports all missing names in a single configuration error
func ValidateRequired(ci bool, lookup func(string) string) error {
	return validateNames(RequiredVariables(ci), lookup)
}

// ValidateOptionalGroup validates a group of variables only when at least one
// of them is set. It reports whether the group is configured.
func ValidateOptionalGroup(names []string, lookup func(string) string) (bool, error) {
	configured := false
	for _, name := range names {
		if strings.TrimSpace(lookup(name)) != "" {
			configured = true
			break
		}
	}
	if !configured {
		return false, nil
	}
	return true, validateNames(names, lookup)
}

func validateNames(names []string, lookup func(string) string) error {
	var missing []string
	for _, name := range names {
		if ValidateValue(name, lookup(name)) != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	return errors.NewConfigurationError(errors.ErrCodeMissingVariable,
		fmt.Sprintf("missing or empty environment variables: %s", strings.Join(missing, ", ")), nil).
		WithOp("ValidateRequired").
		WithDetails(map[string]interface{}{"missing": missing})
}

func missingVariable(name string) error {
	return errors.NewConfigurationError(errors.ErrCodeMissingVariable,
		fmt.Sprintf("missing or empty environment variable: %s", name), nil).
		WithContext("variable", name)
}
