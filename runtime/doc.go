// Package runtime loads and runs core WebAssembly guests on wazero.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx, runtime.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	mod, err := rt.LoadWAT(ctx, src)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reg := host.NewRegistry(env.New())
//	if err := debug.Register(reg, debug.Options{}); err != nil {
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
//	    log.Fatal(err) // lookup failure or trap
//	}
//	if err := inst.Err(); err != nil {
//	    log.Fatal(err) // first error raised inside an import
//	}
//
// # Loading
//
//	LoadWASM(bytes)  - core module binary
//	LoadWAT(text)    - text format, compiled first
//	LoadFile(path)   - either, chosen by extension
//
// Loading rejects modules that do not export exactly one memory.
//
// # Instances
//
// Every Instantiate call creates a separate wazero store, so host
// namespaces can be instantiated again for each instance. Compiled code is
// shared through the runtime's compilation cache.
//
// An instance admits one call at a time. A second call while the first
// holds the store, including a call made from inside a host import, fails
// with a store_busy error instead of blocking.
//
// Once an import has captured an error, Run and Call refuse with
// already_errored; the captured error is never reset.
package runtime
