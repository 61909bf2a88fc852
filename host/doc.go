// Package host registers host-implemented imports for guest modules.
//
// An import comes in one of two shapes, both satisfying Import:
//
//	Typed    a native Go func; wazero marshals scalars by reflection
//	Dynamic  explicit WIT scalar param/result lists and a func over []Value
//
// A Registry groups imports by namespace and turns each namespace into one
// wazero host module at instantiation:
//
//	reg := host.NewRegistry(env.New())
//	reg.Define("debug", host.Typed{
//	    Name: "test_multivalue_static",
//	    Func: func(context.Context) (int32, int32, int32, int32) { return 1, 2, 3, 4 },
//	})
//	reg.Define("debug", host.Dynamic{
//	    Name:    "test_multivalue_dynamic",
//	    Results: []wit.Type{wit.S32{}, wit.S32{}, wit.S32{}, wit.S32{}},
//	    Func: func(ctx context.Context, mod api.Module, args []host.Value) ([]host.Value, error) {
//	        return []host.Value{host.I32(1), host.I32(2), host.I32(3), host.I32(4)}, nil
//	    },
//	})
//
// Import bodies never trap on host-side failures. A Dynamic import that
// returns an error, or a result vector of the wrong shape, has the error
// recorded in the registry's environment and yields zeroed results.
package host
