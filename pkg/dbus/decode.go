package dbus

import (
	"reflect"
	"slices"
	"strconv"
	"strings"

	godbus "github.com/godbus/dbus/v5"
	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/pkg/errors"
)

// MaxNesting bounds decoding recursion. The wire format allows 32 levels of
// arrays plus 32 of structs.
const MaxNesting = 64

// BodyDecoder turns a godbus message body into a value tree. Arguments are
// returned as a struct with one field per argument.
type BodyDecoder struct {
	MaxDepth int
}

func (d BodyDecoder) Decode(raw bus.RawEvent) (bus.Value, error) {
	args, ok := raw.Body.([]interface{})
	if !ok {
		if raw.Body == nil {
			return bus.Value{}, nil
		}
		return bus.Value{}, errors.Errorf("unexpected body type %T", raw.Body)
	}
	if len(args) == 0 {
		return bus.Value{}, nil
	}
	max := d.MaxDepth
	if max <= 0 {
		max = MaxNesting
	}
	fields := make([]bus.Value, len(args))
	for i, a := range args {
		v, err := decode(reflect.ValueOf(a), 1, max)
		if err != nil {
			return bus.Value{}, errors.Wrapf(err, "argument %d", i)
		}
		fields[i] = v
	}
	return bus.Struct(fields...), nil
}

var (
	variantType   = reflect.TypeOf(godbus.Variant{})
	pathType      = reflect.TypeOf(godbus.ObjectPath(""))
	signatureType = reflect.TypeOf(godbus.Signature{})
	fdIndexType   = reflect.TypeOf(godbus.UnixFDIndex(0))
	fdType        = reflect.TypeOf(godbus.UnixFD(0))
)

func decode(v reflect.Value, level, max int) (bus.Value, error) {
	if level > max {
		return bus.Value{}, errors.Errorf("nesting deeper than %d", max)
	}
	if !v.IsValid() {
		return bus.Value{}, errors.New("nil value")
	}

	switch v.Type() {
	case variantType:
		inner, err := decode(reflect.ValueOf(v.Interface().(godbus.Variant).Value()), level+1, max)
		if err != nil {
			return bus.Value{}, err
		}
		return bus.Variant(inner), nil
	case pathType:
		return bus.Primitive("object-path", v.String()), nil
	case signatureType:
		return bus.Primitive("signature", v.Interface().(godbus.Signature).String()), nil
	case fdIndexType:
		return bus.Primitive("fd", strconv.FormatUint(v.Uint(), 10)), nil
	case fdType:
		return bus.Primitive("fd", strconv.FormatInt(v.Int(), 10)), nil
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return bus.Value{}, errors.New("nil value")
		}
		return decode(v.Elem(), level, max)
	case reflect.String:
		return bus.Primitive("str", v.String()), nil
	case reflect.Bool:
		return bus.Primitive("bool", strconv.FormatBool(v.Bool())), nil
	case reflect.Uint8:
		return bus.Primitive("u8", strconv.FormatUint(v.Uint(), 10)), nil
	case reflect.Int16:
		return bus.Primitive("i16", strconv.FormatInt(v.Int(), 10)), nil
	case reflect.Uint16:
		return bus.Primitive("u16", strconv.FormatUint(v.Uint(), 10)), nil
	case reflect.Int32:
		return bus.Primitive("i32", strconv.FormatInt(v.Int(), 10)), nil
	case reflect.Uint32:
		return bus.Primitive("u32", strconv.FormatUint(v.Uint(), 10)), nil
	case reflect.Int64, reflect.Int:
		return bus.Primitive("i64", strconv.FormatInt(v.Int(), 10)), nil
	case reflect.Uint64, reflect.Uint:
		return bus.Primitive("u64", strconv.FormatUint(v.Uint(), 10)), nil
	case reflect.Float64, reflect.Float32:
		return bus.Primitive("f64", strconv.FormatFloat(v.Float(), 'g', -1, 64)), nil
	case reflect.Slice, reflect.Array:
		items := make([]bus.Value, v.Len())
		for i := range items {
			it, err := decode(v.Index(i), level+1, max)
			if err != nil {
				return bus.Value{}, err
			}
			items[i] = it
		}
		// godbus hands structs over as []interface{}
		if v.Type().Elem().Kind() == reflect.Interface {
			return bus.Struct(items...), nil
		}
		return bus.Array(items...), nil
	case reflect.Map:
		pairs := make([]bus.Pair, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			k, err := decode(iter.Key(), level+1, max)
			if err != nil {
				return bus.Value{}, err
			}
			val, err := decode(iter.Value(), level+1, max)
			if err != nil {
				return bus.Value{}, err
			}
			pairs = append(pairs, bus.Pair{Key: k, Value: val})
		}
		slices.SortFunc(pairs, func(a, b bus.Pair) int {
			return strings.Compare(a.Key.Text, b.Key.Text)
		})
		return bus.Dict(pairs...), nil
	case reflect.Struct:
		items := make([]bus.Value, 0, v.NumField())
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			it, err := decode(v.Field(i), level+1, max)
			if err != nil {
				return bus.Value{}, err
			}
			items = append(items, it)
		}
		return bus.Struct(items...), nil
	default:
		return bus.Value{}, errors.Errorf("unsupported value of type %s", v.Type())
	}
}
