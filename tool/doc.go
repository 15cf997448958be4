// Package tool defines tools, the registry a loop reads them from and the
// executor that runs tool calls.
//
// # Defining tools
//
// Typed tools reflect their input schema from a struct. Fields without
// omitempty are required and the jsonschema tag becomes the description:
//
//	type WeatherArgs struct {
//	    Location string `json:"location" jsonschema:"city name"`
//	    Unit     string `json:"unit,omitempty" jsonschema:"celsius or fahrenheit"`
//	}
//
//	weather := tool.Func("get_weather", "Get current weather",
//	    func(ctx context.Context, args WeatherArgs) (Forecast, error) {
//	        return lookup(ctx, args.Location, args.Unit)
//	    })
//
// Tools with a hand-written schema use NewRaw.
//
// # Executing calls
//
// The Executor validates the input against the schema, asks the Approver
// when one is configured, applies the per-call timeout and recovers panics.
// Every failure is a *Error with one of the kinds not-found, invalid-input,
// execution-failed and execution-denied. Execute always returns a usable
// ToolResult as well, so failures can be sent back to the model:
//
//	registry := tool.NewRegistry().Add(weather)
//	exec := tool.NewExecutor(registry, tool.WithTimeout(10*time.Second))
//	outcomes := exec.ExecuteAll(ctx, calls, tool.Context{Step: 1})
//
// ExecuteAll runs the calls of one step concurrently and returns outcomes in
// the order the calls were declared.
//
// # Human approval
//
// A Broker turns decisions made outside the loop into an Approver:
//
//	broker := tool.NewBroker(tool.WithDecisionTimeout(time.Minute))
//	exec := tool.NewExecutor(registry, tool.WithApprover(broker.Approver(), "delete_file"))
//	// elsewhere
//	broker.Approve(callID)
package tool
