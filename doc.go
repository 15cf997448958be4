// Package loom provides the data model for driving a multi-turn conversation
// with a language model that may call tools.
//
// The root package defines messages, content parts, tool calls and results,
// usage accounting, finish reasons, call options and the [LanguageModel]
// capability that vendor adapters implement. The loop itself lives in the
// [github.com/spetersoncode/loom/agent] package.
//
// # Packages
//
//   - agent: the tool loop (model call, decode, execute tools, repeat)
//   - stream: decodes vendor-normalized [RawEvent] values into [StreamPart] values
//   - partialjson: repairs truncated JSON prefixes into valid documents
//   - middleware: onion composition around a [LanguageModel]
//   - retry: retry classification and exponential backoff for model calls
//   - stop: stop conditions evaluated after each step
//   - tool: tool registry, executor and approval broker
//   - store: conversation persistence (memory, SQLite)
//   - object: structured output with partial objects
//   - mcp, agui: MCP tool bridge and AG-UI event mapping
//   - provider/openai, provider/anthropic, provider/google, provider/ollama: vendor adapters
//
// # Basic Usage
//
//	model := openai.New(os.Getenv("OPENAI_API_KEY"), "gpt-4o")
//	registry := tool.NewRegistry()
//	registry.MustRegister(weatherTool)
//
//	a := agent.New(model, registry)
//	result, err := a.Run(ctx, []ai.Message{ai.NewUserText("Weather in Paris?")})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Text)
//
// # Streaming
//
//	for ev := range a.RunStream(ctx, messages) {
//	    if ev.Type == event.MessageDelta {
//	        fmt.Print(ev.Delta)
//	    }
//	}
//
// The package is usually imported with the alias ai:
//
//	import ai "github.com/spetersoncode/loom"
package loom
