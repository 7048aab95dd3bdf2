package scheduler

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// Invocation carries the argument superset available to a dispatched
// callback: entity/attribute/old/new for state subscriptions, event name
// and data for event subscriptions, and the extras bound at registration.
// Targets declare, by parameter shape or field name, the subset they want.
type Invocation struct {
	Handle    string
	EntityID  string
	Attribute string
	Old       any
	New       any
	EventName string
	Data      map[string]any
	Extras    map[string]any
}

// invoker is the normalized unit-of-work form every target is reduced to
// at registration time. Dispatch never inspects the target again.
type invoker func(ctx context.Context, inv Invocation) error

var (
	ctxType        = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType        = reflect.TypeOf((*error)(nil)).Elem()
	invocationType = reflect.TypeOf(Invocation{})
)

// newInvoker builds the invoker for a target. Supported signatures:
//
//	func(context.Context)
//	func(context.Context) error
//	func(context.Context, Invocation)
//	func(context.Context, Invocation) error
//	func(context.Context, S) / func(context.Context, S) error
//
// where S is a struct whose exported fields are bound by name from the
// Invocation superset {Handle, EntityID, Attribute, Old, New, EventName,
// Data} plus the extras supplied at registration. The field plan is built
// once here; a field name outside that set fails registration, not
// dispatch.
func newInvoker(target any, extras map[string]any) (invoker, error) {
	switch fn := target.(type) {
	case func(context.Context):
		return func(ctx context.Context, _ Invocation) error {
			fn(ctx)
			return nil
		}, nil
	case func(context.Context) error:
		return func(ctx context.Context, _ Invocation) error {
			return fn(ctx)
		}, nil
	case func(context.Context, Invocation):
		return func(ctx context.Context, inv Invocation) error {
			fn(ctx, inv)
			return nil
		}, nil
	case func(context.Context, Invocation) error:
		return func(ctx context.Context, inv Invocation) error {
			return fn(ctx, inv)
		}, nil
	}
	return newStructInvoker(target, extras)
}

// bindingSource identifies where a bound struct field's value comes from.
type bindingSource int

const (
	bindHandle bindingSource = iota
	bindEntityID
	bindAttribute
	bindOld
	bindNew
	bindEventName
	bindData
	bindExtra
)

var knownFields = map[string]bindingSource{
	"Handle":    bindHandle,
	"EntityID":  bindEntityID,
	"Attribute": bindAttribute,
	"Old":       bindOld,
	"New":       bindNew,
	"EventName": bindEventName,
	"Data":      bindData,
}

type fieldBinding struct {
	index    []int
	source   bindingSource
	extraKey string
}

func newStructInvoker(target any, extras map[string]any) (invoker, error) {
	fnVal := reflect.ValueOf(target)
	fnType := fnVal.Type()

	if fnType.Kind() != reflect.Func ||
		fnType.NumIn() != 2 ||
		fnType.In(0) != ctxType ||
		fnType.In(1).Kind() != reflect.Struct ||
		fnType.NumOut() > 1 ||
		(fnType.NumOut() == 1 && fnType.Out(0) != errType) {
		return nil, fmt.Errorf("%w: %T", ErrInvalidTarget, target)
	}

	argType := fnType.In(1)
	bindings := make([]fieldBinding, 0, argType.NumField())
	for i := 0; i < argType.NumField(); i++ {
		field := argType.Field(i)
		if !field.IsExported() {
			continue
		}
		if src, ok := knownFields[field.Name]; ok {
			bindings = append(bindings, fieldBinding{index: field.Index, source: src})
			continue
		}
		if key, ok := matchExtra(field.Name, extras); ok {
			bindings = append(bindings, fieldBinding{index: field.Index, source: bindExtra, extraKey: key})
			continue
		}
		return nil, fmt.Errorf("%w: field %s.%s", ErrUnknownBindingField, argType.Name(), field.Name)
	}

	returnsError := fnType.NumOut() == 1

	return func(ctx context.Context, inv Invocation) error {
		args := reflect.New(argType).Elem()
		for _, b := range bindings {
			var v any
			switch b.source {
			case bindHandle:
				v = inv.Handle
			case bindEntityID:
				v = inv.EntityID
			case bindAttribute:
				v = inv.Attribute
			case bindOld:
				v = inv.Old
			case bindNew:
				v = inv.New
			case bindEventName:
				v = inv.EventName
			case bindData:
				v = inv.Data
			case bindExtra:
				v = inv.Extras[b.extraKey]
			}
			if v == nil {
				continue
			}
			val := reflect.ValueOf(v)
			field := args.FieldByIndex(b.index)
			if !val.Type().AssignableTo(field.Type()) {
				return fmt.Errorf("callback argument %s: cannot assign %T", argType.FieldByIndex(b.index).Name, v)
			}
			field.Set(val)
		}

		out := fnVal.Call([]reflect.Value{reflect.ValueOf(ctx), args})
		if returnsError && !out[0].IsNil() {
			return out[0].Interface().(error) //nolint:forcetypeassert // out type checked at registration
		}
		return nil
	}, nil
}

// matchExtra resolves a struct field name against the bound extras: exact
// match first, then case-insensitive.
func matchExtra(field string, extras map[string]any) (string, bool) {
	if _, ok := extras[field]; ok {
		return field, true
	}
	for key := range extras {
		if strings.EqualFold(key, field) {
			return key, true
		}
	}
	return "", false
}
