package api

import (
	"context"
	"net/http"
	"reflect"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/filecoin-project/go-jsonrpc/auth"
	"golang.org/x/xerrors"
)

type MethodName = string

var AllPermissions = []auth.Permission{"read", "write", "sign", "admin"}
var defaultPerms = []auth.Permission{"read"}

// PermissionProxy fills out.Internal with calls into in that first check the
// caller holds the permission named by the field's perm tag.
func PermissionProxy(in interface{}, out interface{}) {
	ra := reflect.ValueOf(in)
	rint := reflect.ValueOf(out).Elem().FieldByName("Internal")
	for i := 0; i < ra.NumMethod(); i++ {
		methodName := ra.Type().Method(i).Name
		field, exists := rint.Type().FieldByName(methodName)
		if !exists {
			continue
		}

		requiredPerm := field.Tag.Get("perm")
		if requiredPerm == "" {
			panic("missing 'perm' tag on " + field.Name) // ok
		}

		fn := ra.Method(i)
		rint.FieldByName(methodName).Set(reflect.MakeFunc(field.Type, func(args []reflect.Value) (results []reflect.Value) {
			ctx := args[0].Interface().(context.Context)
			if auth.HasPerm(ctx, defaultPerms, requiredPerm) {
				return fn.Call(args)
			}

			err := xerrors.Errorf("missing permission to invoke '%s' (need '%s')", methodName, requiredPerm)
			rerr := reflect.ValueOf(&err).Elem()
			if fn.Type().NumOut() == 2 {
				return []reflect.Value{
					reflect.Zero(fn.Type().Out(0)),
					rerr,
				}
			}
			return []reflect.Value{rerr}
		}))
	}
}

// NewRPCServer serves impl under Namespace with permission checks.
func NewRPCServer(impl GhostWalletAPI) *jsonrpc.RPCServer {
	var full GhostWalletStruct
	PermissionProxy(impl, &full)

	rpcServer := jsonrpc.NewServer()
	rpcServer.Register(Namespace, &full)
	return rpcServer
}

// NewClient dials a GhostWallet JSON-RPC endpoint.
func NewClient(ctx context.Context, addr string, header http.Header) (GhostWalletAPI, jsonrpc.ClientCloser, error) {
	var res GhostWalletStruct
	closer, err := jsonrpc.NewMergeClient(ctx, addr, Namespace, []interface{}{&res.Internal}, header)
	return &res, closer, err
}
