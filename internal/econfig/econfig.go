// Package econfig implements the reflect-tag-driven environment variable
// loader shared by the server and client configuration types, in the
// style of the teacher stack's Config.UnmarshalEnv: each exported struct
// field carries an `env:"NAME=default"` tag (or `env:"NAME?=default"` if
// the empty string is a valid explicit override of the default), and
// Unmarshal walks the struct via reflection, consulting a map built from
// KEY=VALUE environment lines.
package econfig

import (
	"fmt"
	"net/netip"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Unmarshal unmarshals the KEY=VALUE pairs in env into the struct pointed
// to by dst, using each field's `env:"..."` tag for its variable name and
// default value. Supported field types: string, int, bool, []string
// (comma-separated), time.Duration, netip.Addr, uint16, zerolog.Level.
func Unmarshal(env map[string]string, dst interface{}) error {
	cv := reflect.ValueOf(dst).Elem()
	for _, ctf := range reflect.VisibleFields(cv.Type()) {
		tag, ok := ctf.Tag.Lookup("env")
		if !ok {
			continue
		}

		var unsettable bool
		key, val, _ := strings.Cut(tag, "=")
		if strings.HasSuffix(key, "?") {
			key = strings.TrimSuffix(key, "?")
			unsettable = true
		}

		if v, exists := env[key]; exists {
			if unsettable || v != "" {
				val = v
			}
		}

		cvf := cv.FieldByName(ctf.Name)
		if err := setField(cvf, key, val); err != nil {
			return err
		}
	}
	return nil
}

func setField(cvf reflect.Value, key, val string) error {
	switch cvf.Interface().(type) {
	case string:
		cvf.SetString(val)
	case int, int8, int16, int32, int64:
		if val == "" {
			cvf.SetInt(0)
			return nil
		}
		v, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("env %s: parse %q: %w", key, val, err)
		}
		cvf.SetInt(v)
	case uint16:
		if val == "" {
			cvf.SetUint(0)
			return nil
		}
		v, err := strconv.ParseUint(val, 10, 16)
		if err != nil {
			return fmt.Errorf("env %s: parse %q: %w", key, val, err)
		}
		cvf.SetUint(v)
	case bool:
		if val == "" {
			cvf.SetBool(false)
			return nil
		}
		v, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("env %s: parse %q: %w", key, val, err)
		}
		cvf.SetBool(v)
	case []string:
		if val == "" {
			cvf.Set(reflect.ValueOf([]string{}))
		} else {
			cvf.Set(reflect.ValueOf(strings.Split(val, ",")))
		}
	case time.Duration:
		if val == "" {
			cvf.Set(reflect.ValueOf(time.Duration(0)))
			return nil
		}
		v, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("env %s: parse %q: %w", key, val, err)
		}
		cvf.Set(reflect.ValueOf(v))
	case netip.Addr:
		if val == "" {
			cvf.Set(reflect.ValueOf(netip.Addr{}))
			return nil
		}
		v, err := netip.ParseAddr(val)
		if err != nil {
			return fmt.Errorf("env %s: parse %q: %w", key, val, err)
		}
		cvf.Set(reflect.ValueOf(v))
	case zerolog.Level:
		v, err := zerolog.ParseLevel(val)
		if err != nil {
			return fmt.Errorf("env %s: parse %q: %w", key, val, err)
		}
		cvf.Set(reflect.ValueOf(v))
	default:
		return fmt.Errorf("unhandled config field type %T (env %s)", cvf.Interface(), key)
	}
	return nil
}

// ParseLines builds an env map from KEY=VALUE lines, e.g. as produced by
// github.com/hashicorp/go-envparse or os.Environ.
func ParseLines(lines []string) map[string]string {
	m := make(map[string]string, len(lines))
	for _, l := range lines {
		if k, v, ok := strings.Cut(l, "="); ok {
			m[k] = v
		}
	}
	return m
}
