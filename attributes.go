package hxclient

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"

	"golang.org/x/net/html"

	"github.com/pthm/hxclient/lib/dom"
)

// Attributes is the loose form of a Config, as found in markup, YAML or
// sealed bindings. Every field has a full name and a shortcut.
type Attributes map[string]any

// shortcuts maps each shortcut to its full attribute name.
var shortcuts = map[string]string{
	"c":   "component",
	"f":   "formId",
	"m":   "multipart",
	"t":   "requestTimeout",
	"pt":  "processingTimeout",
	"p":   "pageId",
	"l":   "listenerInterface",
	"b":   "behaviorIndex",
	"tk":  "token",
	"r":   "removePrevious",
	"th":  "throttle",
	"thp": "throttlePostpone",
	"pr":  "preconditions",
	"be":  "beforeHandlers",
	"s":   "successHandlers",
	"e":   "errorHandlers",
	"u":   "urlArguments",
	"ua":  "urlArgumentMethods",
}

// Shortcut returns the shortcut of a full attribute name, or "".
func Shortcut(full string) string {
	for short, name := range shortcuts {
		if name == full {
			return short
		}
	}
	return ""
}

// ParseAttributes normalizes attrs into a Config. Timeouts and throttle are
// integer milliseconds. Callback fields take a single callback or a slice.
// Unknown keys and keys given under both names are errors.
func ParseAttributes(attrs Attributes) (Config, error) {
	var cfg Config

	full := make(map[string]any, len(attrs))
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name := k
		if long, ok := shortcuts[k]; ok {
			name = long
		} else if Shortcut(k) == "" {
			return cfg, attrError(k, fmt.Errorf("unknown attribute"))
		}
		if _, dup := full[name]; dup {
			return cfg, attrError(k, fmt.Errorf("%q given twice", name))
		}
		full[name] = attrs[k]
	}

	for name, v := range full {
		if err := setAttribute(&cfg, name, v); err != nil {
			return Config{}, attrError(name, err)
		}
	}
	return cfg, nil
}

func attrError(name string, err error) error {
	return newError(KindConfiguration, "parse attributes", "", fmt.Errorf("%s: %w", name, err))
}

func setAttribute(cfg *Config, name string, v any) error {
	var err error
	switch name {
	case "component":
		cfg.Component, err = toRef(v)
	case "formId":
		cfg.FormID, err = toString(v)
	case "multipart":
		cfg.Multipart, err = toBool(v)
	case "requestTimeout":
		cfg.RequestTimeout, err = toMillis(v)
	case "processingTimeout":
		cfg.ProcessingTimeout, err = toMillis(v)
	case "pageId":
		cfg.PageID, err = toString(v)
	case "listenerInterface":
		cfg.ListenerInterface, err = toString(v)
	case "behaviorIndex":
		var n int64
		if n, err = toInt(v); err == nil {
			i := int(n)
			cfg.BehaviorIndex = &i
		}
	case "token":
		cfg.Token, err = toString(v)
	case "removePrevious":
		cfg.RemovePrevious, err = toBool(v)
	case "throttle":
		cfg.Throttle, err = toMillis(v)
	case "throttlePostpone":
		cfg.ThrottlePostpone, err = toBool(v)
	case "preconditions":
		cfg.Preconditions, err = toCallbacks[Precondition](v)
	case "beforeHandlers":
		cfg.BeforeHandlers, err = toCallbacks[BeforeHandler](v)
	case "successHandlers":
		cfg.SuccessHandlers, err = toCallbacks[SuccessHandler](v)
	case "errorHandlers":
		cfg.ErrorHandlers, err = toCallbacks[ErrorHandler](v)
	case "urlArgumentMethods":
		cfg.URLArgumentMethods, err = toCallbacks[URLArgumentMethod](v)
	case "urlArguments":
		cfg.URLArguments, err = toArguments(v)
	}
	return err
}

func toRef(v any) (dom.Ref, error) {
	switch x := v.(type) {
	case nil:
		return dom.Ref{}, nil
	case dom.Ref:
		return x, nil
	case *html.Node:
		return dom.NodeRef(x), nil
	case string:
		return dom.ID(x), nil
	}
	return dom.Ref{}, fmt.Errorf("want element id or node, got %T", v)
}

func toString(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	}
	if s, ok := scalar(v); ok {
		return s, nil
	}
	return "", fmt.Errorf("want string, got %T", v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return false, fmt.Errorf("want boolean, got %q", x)
		}
		return b, nil
	}
	return false, fmt.Errorf("want boolean, got %T", v)
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("want integer, got %q", x)
		}
		return n, nil
	case float32:
		return toInt(float64(x))
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("want integer, got %v", x)
		}
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("integer %d out of range", x)
		}
		return int64(x), nil
	}
	if s, ok := scalar(v); ok {
		return strconv.ParseInt(s, 10, 64)
	}
	return 0, fmt.Errorf("want integer, got %T", v)
}

// toMillis reads an integer number of milliseconds. A time.Duration is taken
// as is.
func toMillis(v any) (time.Duration, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return x, nil
	}
	n, err := toInt(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative milliseconds %d", n)
	}
	return time.Duration(n) * time.Millisecond, nil
}

// toCallbacks accepts a callback or a slice of callbacks. Unnamed func
// values with the right signature are converted.
func toCallbacks[T any](v any) ([]T, error) {
	if v == nil {
		return nil, nil
	}
	if fn, ok := asCallback[T](v); ok {
		return []T{fn}, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("want %T or a slice of it, got %T", *new(T), v)
	}
	res := make([]T, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		e := rv.Index(i).Interface()
		fn, ok := asCallback[T](e)
		if !ok {
			return nil, fmt.Errorf("element %d: want %T, got %T", i, *new(T), e)
		}
		res = append(res, fn)
	}
	return res, nil
}

func asCallback[T any](v any) (T, bool) {
	if fn, ok := v.(T); ok {
		return fn, true
	}
	var zero T
	want := reflect.TypeOf(zero)
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Func || rv.IsNil() || !rv.Type().ConvertibleTo(want) {
		return zero, false
	}
	return rv.Convert(want).Interface().(T), true
}

func toArguments(v any) (URLArguments, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case URLArguments:
		return x, nil
	case map[string]any:
		return URLArguments(x), nil
	case map[string]string:
		res := make(URLArguments, len(x))
		for k, s := range x {
			res[k] = s
		}
		return res, nil
	}
	return nil, fmt.Errorf("want a map, got %T", v)
}
