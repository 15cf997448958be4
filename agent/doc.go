// Package agent runs the tool loop: call the model, decode its output,
// execute the requested tools and feed the results back until the model
// answers without tool calls or a stop condition ends the run.
//
// # Basic Usage
//
//	type WeatherArgs struct {
//	    Location string `json:"location" jsonschema:"city name"`
//	}
//
//	registry := tool.NewRegistry().Add(
//	    tool.Func("get_weather", "Get current weather",
//	        func(ctx context.Context, args WeatherArgs) (string, error) {
//	            return "sunny in " + args.Location, nil
//	        }),
//	)
//
//	a := agent.New(model, registry)
//	result, err := a.Run(ctx, []loom.Message{loom.NewUserText("Weather in Paris?")},
//	    agent.WithMaxSteps(5),
//	)
//
// Run always returns a Result. On failure it holds the steps completed
// before the error.
//
// # Streaming Events
//
// RunStream reports progress as events. The channel is closed after RunEnd
// or RunError.
//
//	for e := range a.RunStream(ctx, messages) {
//	    switch e.Type {
//	    case event.MessageDelta:
//	        fmt.Print(e.Delta)
//	    case event.ToolCallResult:
//	        fmt.Printf("[%s done]\n", e.ToolCall.Name)
//	    }
//	}
//
// # States
//
// Each step moves through awaiting-model, decoding and, when the model asked
// for tools, executing-tools. A run ends in finished or failed. Every
// transition is reported as a StateChange event.
//
// # Stopping
//
// The loop finishes when the model stops without tool calls. WithStopWhen
// ends it earlier; when the step budget of StepCountIs runs out while the
// model still wants tools, the run fails with ErrMaxStepsReached. The default
// budget is 20 steps.
//
// # Tool Failures
//
// Failed tool calls are reported to the model as error results by default.
// WithToolErrorPolicy(ToolErrorsFatal) ends the run on the first failure
// instead. Rejected approvals are always reported to the model.
package agent
