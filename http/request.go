package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	"heartpredict/ml"
)

// maxExactInt is the largest integer a float64 carries without loss.
const maxExactInt = 1 << 53

// ValidationError 单个字段的校验错误
type ValidationError struct {
	Loc  []interface{} `json:"loc"`
	Msg  string        `json:"msg"`
	Type string        `json:"type"`
}

// ValidationErrors 请求体校验失败，对应422响应
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("%v: %s", v[0].Loc, v[0].Msg)
}

// decodeFeatures 解析并校验/predict请求体。每个字段必须存在且类型正确，
// 多余字段忽略。
func decodeFeatures(body io.Reader) (ml.HeartFeatures, error) {
	payload, err := io.ReadAll(body)
	if err != nil {
		return ml.HeartFeatures{}, err
	}

	var raw interface{}
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return ml.HeartFeatures{}, ValidationErrors{{
			Loc:  []interface{}{"body", decodeOffset(err)},
			Msg:  "JSON decode error",
			Type: "value_error.jsondecode",
		}}
	}
	if decoder.More() {
		return ml.HeartFeatures{}, ValidationErrors{{
			Loc:  []interface{}{"body", decoder.InputOffset()},
			Msg:  "JSON decode error",
			Type: "value_error.jsondecode",
		}}
	}

	fields, ok := raw.(map[string]interface{})
	if !ok {
		return ml.HeartFeatures{}, ValidationErrors{{
			Loc:  []interface{}{"body"},
			Msg:  "value is not a valid dict",
			Type: "type_error.dict",
		}}
	}

	var (
		errs   ValidationErrors
		values = make(map[string]float64, ml.NumFeatures)
		ints   = make(map[string]int, ml.NumFeatures)
	)
	for _, name := range ml.FeatureNames() {
		value, present := fields[name]
		loc := []interface{}{"body", name}
		switch {
		case !present:
			errs = append(errs, ValidationError{Loc: loc, Msg: "field required", Type: "value_error.missing"})
		case value == nil:
			errs = append(errs, ValidationError{Loc: loc, Msg: "none is not an allowed value", Type: "type_error.none.not_allowed"})
		case ml.IsIntegerFeature(name):
			n, ok := asInt(value)
			if !ok {
				errs = append(errs, ValidationError{Loc: loc, Msg: "value is not a valid integer", Type: "type_error.integer"})
				continue
			}
			ints[name] = n
		default:
			f, ok := asFloat(value)
			if !ok {
				errs = append(errs, ValidationError{Loc: loc, Msg: "value is not a valid float", Type: "type_error.float"})
				continue
			}
			values[name] = f
		}
	}
	if len(errs) > 0 {
		return ml.HeartFeatures{}, errs
	}

	return ml.HeartFeatures{
		Age:      ints["age"],
		Sex:      ints["sex"],
		CP:       ints["cp"],
		Trestbps: ints["trestbps"],
		Chol:     ints["chol"],
		Fbs:      ints["fbs"],
		Restecg:  ints["restecg"],
		Thalach:  ints["thalach"],
		Exang:    ints["exang"],
		Oldpeak:  values["oldpeak"],
		Slope:    ints["slope"],
		CA:       ints["ca"],
		Thal:     ints["thal"],
	}, nil
}

// asInt accepts JSON integers, and floats with no fractional part.
func asInt(value interface{}) (int, bool) {
	number, ok := value.(json.Number)
	if !ok {
		return 0, false
	}
	if n, err := number.Int64(); err == nil {
		if n > maxExactInt || n < -maxExactInt {
			return 0, false
		}
		return int(n), true
	}
	f, err := number.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > maxExactInt {
		return 0, false
	}
	return int(f), true
}

func asFloat(value interface{}) (float64, bool) {
	number, ok := value.(json.Number)
	if !ok {
		return 0, false
	}
	f, err := number.Float64()
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func decodeOffset(err error) int64 {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return syntaxErr.Offset
	}
	return 0
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
