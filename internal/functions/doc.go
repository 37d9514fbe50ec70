// Package functions provides the scripted-function runtime behind the
// python_batch and python_action step types.
//
// RunBatchScript runs a script file with the configured interpreter as a
// one-shot child process and reports its exit status.
//
// RunActionFunction calls a named function defined in the *.js files of the
// functions directory. Each call evaluates those files in a fresh goja VM,
// so functions share no state between runs:
//
//	function export_orders(args, cache, log) {
//	    log("exporting", args.region)
//	    cache.insert("orders", args.region, [{id: "1", qty: 3}], ["id", "qty"])
//	    // return nothing (or "") on success, a message on failure
//	}
package functions
