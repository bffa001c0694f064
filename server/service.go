package server

import (
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"
)

type methodType struct {
	method    reflect.Method
	ArgType   reflect.Type
	ReplyType reflect.Type
}

type service struct {
	name   string // JSON-RPC namespace, e.g. "eth"
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType // keyed by JSON-RPC name, e.g. "blockNumber"
}

// NewService scans rcvr for exported methods of the form
//
//	func (r *T) Name(args *Args, reply *Reply) error
//
// and exposes each one as namespace_name. Args must decode from the params
// array of the request, so it is a slice, an array or a custom unmarshaler.
func NewService(namespace string, rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("rpc: rcvr must be a pointer, got %v", typ)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("rpc: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}
	if namespace == "" {
		return nil, fmt.Errorf("rpc: empty namespace for %s", typ.Elem().Name())
	}

	srv := &service{
		name:   namespace,
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	srv.registerMethods()
	if len(srv.method) == 0 {
		return nil, fmt.Errorf("rpc: %s has no methods of the form (*Args, *Reply) error", typ.Elem().Name())
	}
	return srv, nil
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func (s *service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		if method.Type.NumIn() != 3 || method.Type.NumOut() != 1 || method.Type.Out(0) != errorType ||
			method.Type.In(1).Kind() != reflect.Ptr || method.Type.In(2).Kind() != reflect.Ptr {
			continue
		}

		s.method[lowerFirst(method.Name)] = &methodType{
			method:    method,
			ArgType:   method.Type.In(1).Elem(),
			ReplyType: method.Type.In(2).Elem(),
		}
	}
}

func (s *service) call(mType *methodType, argv, replyv reflect.Value) error {
	args := [3]reflect.Value{s.rcvr, argv, replyv}
	results := mType.method.Func.Call(args[:])
	if !results[0].IsNil() {
		return results[0].Interface().(error)
	}
	return nil
}

// lowerFirst turns a Go method name into its JSON-RPC form: BlockNumber -> blockNumber.
func lowerFirst(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToLower(r)) + name[size:]
}
