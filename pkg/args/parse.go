package args

import (
	"encoding"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Parser 自定义类型自行解析参数文本
type Parser interface {
	ParseArgs(input string) error
}

// Enum 由固定选项组成的参数类型。字符串类型保存匹配到的选项，整数类型保存选项下标
type Enum interface {
	Options() []string
}

// CaseInsensitive 可选，Enum 实现后 IgnoreCase 返回 true 时不区分大小写
type CaseInsensitive interface {
	IgnoreCase() bool
}

const (
	tagName = "args"
	tagRest = "rest"
	tagSkip = "-"
)

var (
	durationType = reflect.TypeFor[time.Duration]()
	specCache    sync.Map // reflect.Type -> *structSpec
)

// Parse 把 input 解析为 T
func Parse[T any](input string) (T, error) {
	var v T
	err := Bind(input, &v)
	return v, err
}

// Bind 把 input 解析到 dst 指向的值。
//
// 结构体按导出字段的声明顺序依次消费一个词；最后一个字段带 `args:"rest"` 标签时
// 接收剩余的全部文本。带 `args:"-"` 的字段被忽略。
func Bind(input string, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("args: Bind requires a non-nil pointer, got %T", dst)
	}
	return bindValue(input, rv.Elem())
}

func bindValue(input string, v reflect.Value) error {
	if v.Kind() == reflect.Pointer {
		p := reflect.New(v.Type().Elem())
		if err := bindValue(input, p.Elem()); err != nil {
			return err
		}
		v.Set(p)
		return nil
	}
	if v.CanAddr() {
		switch p := v.Addr().Interface().(type) {
		case Parser:
			if err := p.ParseArgs(input); err != nil {
				return wrap(input, err)
			}
			return nil
		case encoding.TextUnmarshaler:
			if err := p.UnmarshalText([]byte(strings.TrimSpace(input))); err != nil {
				return wrap(input, err)
			}
			return nil
		}
	}
	if e, ok := v.Interface().(Enum); ok {
		return bindEnum(input, v, e)
	}
	if v.Type() == durationType {
		d, err := time.ParseDuration(input)
		if err != nil {
			return wrap(input, err)
		}
		v.SetInt(int64(d))
		return nil
	}

	switch v.Kind() {
	case reflect.Struct:
		return bindStruct(input, v)
	case reflect.String:
		v.SetString(input)
	case reflect.Bool:
		b, err := parseBool(input)
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(input, 10, v.Type().Bits())
		if err != nil {
			return wrap(input, err)
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(input, 10, v.Type().Bits())
		if err != nil {
			return wrap(input, err)
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(input, v.Type().Bits())
		if err != nil {
			return wrap(input, err)
		}
		v.SetFloat(f)
	case reflect.Slice:
		parts := Fields(input)
		s := reflect.MakeSlice(v.Type(), len(parts), len(parts))
		for i, part := range parts {
			if err := bindValue(part, s.Index(i)); err != nil {
				return err
			}
		}
		v.Set(s)
	default:
		return &ParseError{Input: input, Err: fmt.Errorf("%w: %s", ErrUnsupported, v.Type())}
	}
	return nil
}

func bindStruct(input string, v reflect.Value) error {
	spec, err := specFor(v.Type())
	if err != nil {
		return err
	}

	n := len(spec.fields)
	if spec.rest {
		n--
	}
	tokens, rest := SplitN(input, n)
	if len(tokens) < n {
		return &ParseError{
			Input: input,
			Err:   fmt.Errorf("%w: want %d, got %d", ErrArgCount, n, len(tokens)),
		}
	}
	for i, tok := range tokens {
		if err := bindValue(tok, v.FieldByIndex(spec.fields[i])); err != nil {
			return err
		}
	}
	if spec.rest {
		return bindValue(rest, v.FieldByIndex(spec.fields[n]))
	}
	return nil
}

func bindEnum(input string, v reflect.Value, e Enum) error {
	fold := false
	if ci, ok := e.(CaseInsensitive); ok {
		fold = ci.IgnoreCase()
	}
	want := input
	if fold {
		want = strings.ToLower(input)
	}
	for i, opt := range e.Options() {
		got := opt
		if fold {
			got = strings.ToLower(opt)
		}
		if got != want {
			continue
		}
		switch v.Kind() {
		case reflect.String:
			v.SetString(opt)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			v.SetInt(int64(i))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			v.SetUint(uint64(i))
		default:
			return &ParseError{Input: input, Err: fmt.Errorf("%w: enum of kind %s", ErrUnsupported, v.Kind())}
		}
		return nil
	}
	return &ParseError{Input: input, Err: ErrNoSuchOption}
}

func parseBool(input string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "true", "yes", "y":
		return true, nil
	case "false", "no", "n":
		return false, nil
	}
	return false, &ParseError{Input: input, Err: ErrInvalidBool}
}

type structSpec struct {
	fields [][]int
	rest   bool
}

func specFor(t reflect.Type) (*structSpec, error) {
	if s, ok := specCache.Load(t); ok {
		return s.(*structSpec), nil
	}

	spec := &structSpec{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get(tagName)
		if tag == tagSkip {
			continue
		}
		if spec.rest {
			return nil, fmt.Errorf("args: %s: field with %q tag must be the last argument", t, tagRest)
		}
		if tag == tagRest {
			spec.rest = true
		}
		spec.fields = append(spec.fields, f.Index)
	}

	actual, _ := specCache.LoadOrStore(t, spec)
	return actual.(*structSpec), nil
}

func wrap(input string, err error) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		return err
	}
	return &ParseError{Input: input, Err: err}
}
