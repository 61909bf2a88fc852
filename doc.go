// Package multivalue is a demo harness for multi-value returns across the
// WebAssembly host/guest boundary, built on wazero.
//
// Guest programs call host imports in the "debug" namespace that return four
// i32 values, either directly as a multi-value result or packed into guest
// memory through a return pointer. The host supplies those imports either
// statically (a typed Go closure) or dynamically (a value-vector function
// with an explicit signature) and prints what the guest observed.
//
// # Architecture Overview
//
//	multivalue/          Root package with Memory and Allocator interfaces
//	├── env/             Per-instance host state: first-error slot, memory view, allocator
//	├── host/            Import registrar: Typed and Dynamic imports, namespaces
//	├── debug/           The "debug" namespace used by the demo guests
//	├── runtime/         Module loading and the instance wrapper
//	├── guest/           Inline WAT guest programs
//	├── config/          CLI configuration
//	├── errors/          Structured error types
//	└── cmd/multivalue/  Driver
//
// # Quick Start
//
//	rt, err := runtime.New(ctx, runtime.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	bin, err := guest.Compile("multivalue")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	mod, err := rt.LoadWASM(ctx, bin)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reg := host.NewRegistry(env.New()) // one registry per instance
//	if err := debug.Register(reg, debug.Options{Out: os.Stdout}); err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := mod.Instantiate(ctx, reg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	if err := inst.Run(ctx, "run"); err != nil {
//	    log.Fatal(err)
//	}
//	if err := inst.Err(); err != nil {
//	    log.Fatal(err) // an import failed while the guest was running
//	}
//
// # Import Errors
//
// Host imports never trap the guest. The first error raised by any import is
// captured in the instance environment and every later one is dropped. The
// driver must inspect Instance.Err after each guest call.
//
// # Thread Safety
//
// Runtime and Module are safe for concurrent use. An Instance owns a single
// store; concurrent calls into it fail with a store_busy error.
package multivalue
