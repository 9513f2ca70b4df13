package utils

import "reflect"

// AssertType attempts to assert that the given interface argument is
// the given type parameter.
func AssertType[T any](from interface{}) (T, error) {
	var zero T
	asserted, ok := from.(T)
	if !ok {
		if reflect.TypeOf((*T)(nil)).Elem().Kind() == reflect.Interface {
			return zero, NewUnimplementedInterfaceError[T](from)
		}
		return zero, NewUnexpectedTypeError[T](from)
	}
	return asserted, nil
}
