// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package iofmt

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/appmgr/lib/codec"
)

// Error reports a failure to encode or decode a value. Op is "encode"
// or "decode".
type Error struct {
	Format Format
	Op     string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Format, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsError reports whether err is (or wraps) an *Error.
func IsError(err error) bool {
	var target *Error
	return errors.As(err, &target)
}

// Encode serializes v in format f.
func Encode(f Format, v any) ([]byte, error) {
	data, err := encode(f, v)
	if err != nil {
		return nil, &Error{Format: f, Op: "encode", Err: err}
	}
	return data, nil
}

func encode(f Format, v any) ([]byte, error) {
	switch f {
	case JSON:
		return json.Marshal(v)
	case CBOR:
		return codec.Marshal(v)
	case YAML:
		tree, err := toTree(v)
		if err != nil {
			return nil, err
		}
		return yaml.Marshal(tree)
	case TOML:
		tree, err := toTree(v)
		if err != nil {
			return nil, err
		}
		return toml.Marshal(tree)
	default:
		return nil, fmt.Errorf("unsupported format %q", string(f))
	}
}

// Decode parses data in format f into v, which must be a pointer.
func Decode(f Format, data []byte, v any) error {
	if err := decode(f, data, v); err != nil {
		return &Error{Format: f, Op: "decode", Err: err}
	}
	return nil
}

func decode(f Format, data []byte, v any) error {
	switch f {
	case JSON:
		return json.Unmarshal(data, v)
	case CBOR:
		return codec.Unmarshal(data, v)
	case YAML:
		var tree any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return err
		}
		return fromTree(tree, v)
	case TOML:
		var tree map[string]any
		if err := toml.Unmarshal(data, &tree); err != nil {
			return err
		}
		return fromTree(tree, v)
	default:
		return fmt.Errorf("unsupported format %q", string(f))
	}
}

// DecodeFile reads path and decodes it in the format its extension
// names. JSONC comments and trailing commas are stripped first.
func DecodeFile(path string, v any) error {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".jsonc") {
		data = jsonc.ToJSON(data)
	}
	if err := Decode(format, data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// toTree converts v into generic maps and slices through its JSON form,
// so YAML and TOML output uses the json tag names.
func toTree(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// fromTree binds a generic decoded tree to v through encoding/json.
func fromTree(tree any, v any) error {
	normalized, err := normalize(tree)
	if err != nil {
		return err
	}
	data, err := json.Marshal(normalized)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// normalize rewrites map[any]any (YAML documents with non-string keys,
// such as port mappings) into map[string]any.
func normalize(value any) (any, error) {
	switch typed := value.(type) {
	case map[string]any:
		for key, element := range typed {
			converted, err := normalize(element)
			if err != nil {
				return nil, err
			}
			typed[key] = converted
		}
		return typed, nil
	case map[any]any:
		result := make(map[string]any, len(typed))
		for key, element := range typed {
			converted, err := normalize(element)
			if err != nil {
				return nil, err
			}
			switch key.(type) {
			case string, int, int64, uint64, float64, bool:
				result[fmt.Sprint(key)] = converted
			default:
				return nil, fmt.Errorf("unsupported map key %v of type %T", key, key)
			}
		}
		return result, nil
	case []any:
		for index, element := range typed {
			converted, err := normalize(element)
			if err != nil {
				return nil, err
			}
			typed[index] = converted
		}
		return typed, nil
	default:
		return value, nil
	}
}
