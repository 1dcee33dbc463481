/*
 * Copyright 2025 the whatstrax authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/sifary/whatstrax/pkg/logger"
	"github.com/sifary/whatstrax/pkg/models"
)

const envPrefix = "WHATSTRAX_"

var (
	durationType       = reflect.TypeOf(time.Duration(0))
	configDurationType = reflect.TypeOf(models.Duration(0))
)

// applyEnvOverrides walks dst's exported string/bool/int/float fields and
// overrides them from WHATSTRAX_<FIELD> environment variables. Nested structs
// use underscore separation, e.g. WHATSTRAX_STREAM_URL -> cfg.Stream.URL.
// Duration fields accept Go duration strings as well as raw nanoseconds.
func applyEnvOverrides(dst interface{}, log logger.Logger) {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return
	}

	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return
	}

	overrideStruct(v, envPrefix, log)
}

func overrideStruct(v reflect.Value, prefix string, log logger.Logger) {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}

		name := prefix + strings.ToUpper(t.Field(i).Name)

		if field.Kind() == reflect.Ptr && !field.IsNil() && field.Elem().Kind() == reflect.Struct {
			overrideStruct(field.Elem(), name+"_", log)
			continue
		}

		if field.Kind() == reflect.Struct {
			overrideStruct(field, name+"_", log)
			continue
		}

		raw, ok := os.LookupEnv(name)
		if !ok {
			continue
		}

		if setField(field, raw) {
			log.Debug().Str("var", name).Msg("Applied environment override")
		} else {
			log.Warn().Str("var", name).Msg("Ignoring unparsable environment override")
		}
	}
}

func setField(field reflect.Value, raw string) bool {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return false
		}

		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == durationType || field.Type() == configDurationType {
			if d, err := time.ParseDuration(raw); err == nil {
				field.SetInt(int64(d))
				return true
			}
		}

		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return false
		}

		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return false
		}

		field.SetFloat(f)
	default:
		return false
	}

	return true
}
