// Copyright 2024 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package message implements the JSON-based configuration protocol of the
// engine. A Message is typically a struct holding the expected fields, with
// struct tags driving required fields, defaults and value choices.
package message

import (
	"encoding/json"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/stockparfait/errors"
)

// Message is the building block of a JSON-based configuration. It is
// intended to be implemented by struct pointers:
//
//	type Run struct {
//	  Steps int     `json:"steps" required:"true"`
//	  DT    float64 `json:"dt" default:"1.0"`
//	  Mode  string  `json:"mode" choices:"discrete,continuous"`
//	  Raw   interface{} `json:"raw"` // kept as parsed JSON
//	  Skip  int     `json:"-"`
//	}
//
//	func (r *Run) InitMessage(js interface{}) error {
//	  return message.Init(r, js)
//	}
type Message interface {
	// InitMessage converts a generic JSON value read by the encoding/json
	// package into the specific message: checks required fields, sets
	// defaults, and rejects unrecognized fields.
	InitMessage(js interface{}) error
}

var rMessage = reflect.TypeOf((*Message)(nil)).Elem()
var rAny = reflect.TypeOf((*interface{})(nil)).Elem()

// initMessagePtr allocates and initializes a Message implemented by the
// pointer type t.
func initMessagePtr(jv interface{}, t reflect.Type) (reflect.Value, error) {
	var Nil reflect.Value
	if t.Kind() != reflect.Ptr {
		return Nil, errors.Reason(
			"type %s implements Message but is not a pointer", t.Name())
	}
	ptr := reflect.New(t.Elem())
	if err := ptr.Interface().(Message).InitMessage(jv); err != nil {
		return Nil, errors.Annotate(err, "%s.InitMessage() failed", t.Name())
	}
	return ptr, nil
}

// convert recursively converts a raw JSON value to the target type. Pointer
// types implementing Message are initialized with their InitMessage method;
// interface{} fields keep the raw JSON value as is.
func convert(jv interface{}, t reflect.Type) (reflect.Value, error) {
	var Nil reflect.Value
	if t == rAny {
		if jv == nil {
			return reflect.Zero(t), nil
		}
		return reflect.ValueOf(jv), nil
	}
	if t.Implements(rMessage) {
		if jv == nil {
			return reflect.Zero(t), nil
		}
		return initMessagePtr(jv, t)
	}
	if ptrTp := reflect.PtrTo(t); ptrTp.Implements(rMessage) {
		if jv == nil {
			jv = make(map[string]interface{}) // force the defaults for t
		}
		ptr, err := initMessagePtr(jv, ptrTp)
		if err != nil {
			return Nil, err
		}
		return reflect.Indirect(ptr), nil
	}
	if jv == nil {
		return reflect.Zero(t), nil
	}
	switch t.Kind() {
	case reflect.Ptr:
		v, err := convert(jv, t.Elem())
		if err != nil {
			return Nil, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(v)
		return ptr, nil

	case reflect.Bool:
		b, ok := jv.(bool)
		if !ok {
			return Nil, errors.Reason("not a bool: %v", jv)
		}
		return reflect.ValueOf(b), nil

	case reflect.Int:
		f, ok := jv.(float64)
		if !ok {
			return Nil, errors.Reason("not a number: %v", jv)
		}
		return reflect.ValueOf(int(f)), nil

	case reflect.Uint64:
		f, ok := jv.(float64)
		if !ok {
			return Nil, errors.Reason("not a number: %v", jv)
		}
		return reflect.ValueOf(uint64(f)), nil

	case reflect.Float64:
		f, ok := jv.(float64)
		if !ok {
			return Nil, errors.Reason("not a number: %v", jv)
		}
		return reflect.ValueOf(f), nil

	case reflect.String:
		s, ok := jv.(string)
		if !ok {
			return Nil, errors.Reason("not a string: %v", jv)
		}
		return reflect.ValueOf(s), nil

	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return Nil, errors.Reason("map[%s] is not supported", t.Key().Kind())
		}
		m, ok := jv.(map[string]interface{})
		if !ok {
			return Nil, errors.Reason("not a map: %v", jv)
		}
		res := reflect.MakeMap(t)
		for k, v := range m {
			el, err := convert(v, t.Elem())
			if err != nil {
				return Nil, errors.Annotate(err, "map key '%s'", k)
			}
			res.SetMapIndex(reflect.ValueOf(k), el)
		}
		return res, nil

	case reflect.Slice:
		s, ok := jv.([]interface{})
		if !ok {
			return Nil, errors.Reason("not a slice: %v", jv)
		}
		res := reflect.MakeSlice(t, len(s), len(s))
		for i, v := range s {
			el, err := convert(v, t.Elem())
			if err != nil {
				return Nil, errors.Annotate(err, "slice element %d", i)
			}
			res.Index(i).Set(el)
		}
		return res, nil
	}
	return Nil, errors.Reason("unsupported type: %s", t.Name())
}

// defaultValue converts a default tag string to the type t.
func defaultValue(s string, t reflect.Type) (reflect.Value, error) {
	var Nil reflect.Value
	switch t.Kind() {
	case reflect.Ptr:
		v, err := defaultValue(s, t.Elem())
		if err != nil {
			return Nil, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(v)
		return ptr, nil
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Nil, errors.Annotate(err, "invalid bool default: %s", s)
		}
		return reflect.ValueOf(b), nil
	case reflect.Int:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Nil, errors.Annotate(err, "invalid int default: %s", s)
		}
		return reflect.ValueOf(int(i)), nil
	case reflect.Uint64:
		u, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return Nil, errors.Annotate(err, "invalid uint default: %s", s)
		}
		return reflect.ValueOf(u), nil
	case reflect.Float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Nil, errors.Annotate(err, "invalid float default: %s", s)
		}
		return reflect.ValueOf(f), nil
	case reflect.String:
		return reflect.ValueOf(s), nil
	}
	return Nil, errors.Reason("type %s cannot have a default tag", t.Name())
}

// fieldName extracts the JSON name of a struct field; "" when the field is
// skipped.
func fieldName(f reflect.StructField) string {
	firstChar, _ := utf8.DecodeRuneInString(f.Name)
	if !unicode.IsUpper(firstChar) {
		return ""
	}
	name := f.Name
	if tag := f.Tag.Get("json"); tag != "" {
		parts := strings.Split(tag, ",")
		if parts[0] == "-" {
			return ""
		}
		if parts[0] != "" {
			name = parts[0]
		}
	}
	return name
}

// setChecked assigns v to the field fv after validating a choices tag.
func setChecked(f reflect.StructField, fv, v reflect.Value) error {
	if choices, ok := f.Tag.Lookup("choices"); ok {
		if f.Type.Kind() != reflect.String {
			return errors.Reason("choices tag on a non-string field %s", f.Name)
		}
		s := v.Interface().(string)
		if s != "" && !StringIn(s, strings.Split(choices, ",")...) {
			return errors.Reason("value '%s' for %s is not in [%s]",
				s, f.Name, choices)
		}
	}
	fv.Set(v)
	return nil
}

// Init is the generic implementation behind most InitMessage methods. It
// expects m to be a struct pointer and js a map[string]interface{}.
func Init(m Message, js interface{}) error {
	rt := reflect.TypeOf(m)
	if !(rt.Kind() == reflect.Ptr && rt.Elem().Kind() == reflect.Struct) {
		return errors.Reason("Message must be a struct pointer, got %s", rt.Name())
	}
	if js == nil {
		return errors.Reason("JSON value is nil")
	}
	jsMap, ok := js.(map[string]interface{})
	if !ok {
		return errors.Reason("JSON value is not a map: %v", js)
	}
	rt = rt.Elem()
	rv := reflect.ValueOf(m).Elem()
	found := make(map[string]struct{})
	var missing []string
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		name := fieldName(f)
		if name == "" {
			continue
		}
		fv := rv.FieldByName(f.Name)
		if jv, ok := jsMap[name]; ok {
			found[name] = struct{}{}
			v, err := convert(jv, f.Type)
			if err != nil {
				return errors.Annotate(err, "error assigning field %s", f.Name)
			}
			if err := setChecked(f, fv, v); err != nil {
				return err
			}
			continue
		}
		if f.Tag.Get("required") == "true" {
			missing = append(missing, name)
			continue
		}
		if def, ok := f.Tag.Lookup("default"); ok {
			v, err := defaultValue(def, f.Type)
			if err != nil {
				return errors.Annotate(err, "error defaulting field %s", f.Name)
			}
			if err := setChecked(f, fv, v); err != nil {
				return err
			}
			continue
		}
		v, err := convert(nil, f.Type)
		if err != nil {
			return errors.Annotate(err, "error zeroing field %s", f.Name)
		}
		if err := setChecked(f, fv, v); err != nil {
			return err
		}
	}
	if len(missing) != 0 {
		return errors.Reason("missing required fields: %s",
			strings.Join(missing, ", "))
	}
	var extra []string
	for k := range jsMap {
		if _, ok := found[k]; !ok {
			extra = append(extra, k)
		}
	}
	if len(extra) != 0 {
		return errors.Reason("unsupported fields for %s: %s",
			rt.Name(), strings.Join(extra, ", "))
	}
	return nil
}

// FromJSON initializes the message from raw JSON bytes.
func FromJSON(m Message, data []byte) error {
	var js interface{}
	if err := json.Unmarshal(data, &js); err != nil {
		return errors.Annotate(err, "failed to parse JSON")
	}
	if err := m.InitMessage(js); err != nil {
		return errors.Annotate(err, "failed to init message")
	}
	return nil
}

// FromFile initializes the message from a JSON file.
func FromFile(m Message, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Annotate(err, "failed to read '%s'", path)
	}
	if err := FromJSON(m, data); err != nil {
		return errors.Annotate(err, "failed to parse '%s'", path)
	}
	return nil
}

// StringIn checks that s equals one of the values.
func StringIn(s string, values ...string) bool {
	for _, v := range values {
		if s == v {
			return true
		}
	}
	return false
}

// AsFloats converts a raw JSON array to []float64.
func AsFloats(jv interface{}) ([]float64, error) {
	s, ok := jv.([]interface{})
	if !ok {
		return nil, errors.Reason("not an array: %v", jv)
	}
	res := make([]float64, len(s))
	for i, v := range s {
		f, ok := v.(float64)
		if !ok {
			return nil, errors.Reason("element %d is not a number: %v", i, v)
		}
		res[i] = f
	}
	return res, nil
}

// AsFloatRows converts a raw JSON array of arrays to [][]float64.
func AsFloatRows(jv interface{}) ([][]float64, error) {
	s, ok := jv.([]interface{})
	if !ok {
		return nil, errors.Reason("not an array: %v", jv)
	}
	res := make([][]float64, len(s))
	for i, v := range s {
		row, err := AsFloats(v)
		if err != nil {
			return nil, errors.Annotate(err, "row %d", i)
		}
		res[i] = row
	}
	return res, nil
}
