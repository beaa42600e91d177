package service

import (
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"
)

var errorInterface = reflect.TypeOf((*error)(nil)).Elem()

// GetService returns the instance wrapped by an endpoint matching the given
// configuration kind and endpoint name.
func (d *Dispatcher) GetService(kind string, name string) (any, error) {
	endpoints := d.index.Endpoints(kind, name)
	if len(endpoints) == 0 {
		return nil, NewRemoteError(ErrUnknownEndpoint,
			fmt.Sprintf("no endpoint named %q with configuration %q", name, kind), nil)
	}
	return endpoints[0].Instance, nil
}

// Dispatch calls a method on the instance wrapped by an endpoint matching
// the given configuration kind and endpoint name. Parameters are matched
// positionally and converted to the method's argument types where possible.
// A trailing error result is split off and returned as the error; call
// panics propagate to the caller.
func (d *Dispatcher) Dispatch(kind string, name string, method string, params []any) (any, error) {
	instance, err := d.GetService(kind, name)
	if err != nil {
		return nil, err
	}
	return invokeMethod(instance, method, params)
}

// invokeMethod resolves a method by name on the instance and calls it with
// the given positional parameters. A lowercase wire name resolves to the
// exported Go method of the same name.
func invokeMethod(instance any, method string, params []any) (any, error) {
	if instance == nil {
		return nil, NewBadParameterError("endpoint wraps no instance", nil)
	}
	fn, ok := resolveMethod(reflect.ValueOf(instance), method)
	if !ok {
		return nil, NewUnknownMethodError(method)
	}
	args, err := buildArguments(fn.Type(), method, params)
	if err != nil {
		return nil, err
	}
	return splitResults(fn.Call(args))
}

func resolveMethod(value reflect.Value, method string) (reflect.Value, bool) {
	if fn := value.MethodByName(method); fn.IsValid() {
		return fn, true
	}
	if exported := exportedName(method); exported != method {
		if fn := value.MethodByName(exported); fn.IsValid() {
			return fn, true
		}
	}
	return reflect.Value{}, false
}

func exportedName(method string) string {
	r, size := utf8.DecodeRuneInString(method)
	if r == utf8.RuneError {
		return method
	}
	return string(unicode.ToUpper(r)) + method[size:]
}

func buildArguments(fnType reflect.Type, method string, params []any) ([]reflect.Value, error) {
	fixed := fnType.NumIn()
	if fnType.IsVariadic() {
		fixed--
		if len(params) < fixed {
			return nil, NewBadParameterError(fmt.Sprintf(
				"method %q expects at least %d parameters, got %d", method, fixed, len(params)), nil)
		}
	} else if len(params) != fixed {
		return nil, NewBadParameterError(fmt.Sprintf(
			"method %q expects %d parameters, got %d", method, fixed, len(params)), nil)
	}

	args := make([]reflect.Value, 0, len(params))
	for i, param := range params {
		var argType reflect.Type
		if i < fixed {
			argType = fnType.In(i)
		} else {
			argType = fnType.In(fnType.NumIn() - 1).Elem()
		}
		arg, err := coerceArgument(param, argType)
		if err != nil {
			return nil, NewBadParameterError(fmt.Sprintf(
				"method %q parameter %d: %v", method, i, err), nil)
		}
		args = append(args, arg)
	}
	return args, nil
}

func coerceArgument(param any, argType reflect.Type) (reflect.Value, error) {
	if param == nil {
		return reflect.Zero(argType), nil
	}
	value := reflect.ValueOf(param)
	if value.Type().AssignableTo(argType) {
		return value, nil
	}
	if value.Type().ConvertibleTo(argType) {
		return value.Convert(argType), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %s as %s", value.Type(), argType)
}

// splitResults turns the reflect call results into a single return value. A
// trailing result declared as error is separated, a single value is returned
// as is and multiple values are returned as a slice.
func splitResults(results []reflect.Value) (any, error) {
	if len(results) > 0 {
		last := results[len(results)-1]
		if last.Type() == errorInterface {
			results = results[:len(results)-1]
			if !last.IsNil() {
				return nil, last.Interface().(error)
			}
		}
	}
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0].Interface(), nil
	default:
		values := make([]any, 0, len(results))
		for _, result := range results {
			values = append(values, result.Interface())
		}
		return values, nil
	}
}
