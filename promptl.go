// Package promptl compiles structured conversational prompts and runs them
// as multi-step chains against a model provider.
//
// A prompt document is plain text with optional YAML frontmatter, {{ }}
// interpolation, control flow and XML-like structural tags:
//
//	---
//	model: gemini-2.0-flash
//	temperature: 0.2
//	---
//	You are a helpful assistant.
//	<user>
//	  {{ for item in items }}- {{ item }}
//	  {{ endfor }}
//	</user>
//
// # Resolving
//
// Create an engine and resolve a document into a Conversation:
//
//	engine := promptl.MustNew()
//	conv, meta, err := engine.Resolve(ctx, promptl.ResolveInput{
//	    Document:   promptl.Document{Path: "greeting", Source: source},
//	    Parameters: map[string]any{"items": []string{"a", "b"}},
//	})
//	// meta.Parameters lists inputs the template read but that were not supplied
//	// meta.Errors lists syntax problems found while parsing
//
// # Control Flow
//
//	{{ if user.admin }}...{{ else if user.guest }}...{{ else }}...{{ endif }}
//	{{ for item, index in items }}...{{ else }}(empty){{ endfor }}
//	{{ for items as item }}...{{ endfor }}
//
// # Structural Tags
//
// Messages: <system>, <user>, <assistant>, <tool id="" name="">, <message role="">.
// Content: <content-text>, <content-image>, <tool-call id="" name="" arguments={{ }} />.
// References: <prompt path="other/prompt" param={{ value }} />.
// Steps: <step [isolated] [as="var"] [config attributes]>...</step>.
//
// # Chains
//
// A Runner resolves the document step by step, invokes a Provider for each
// step and streams numbered events:
//
//	runner := promptl.NewRunner(engine, promptl.WithProvider(provider))
//	run, err := runner.Run(ctx, promptl.RunInput{Document: doc, Parameters: params})
//	for ev := range run.Events() {
//	    // ev.Channel is provider-event or latitude-event
//	}
//	resp, err := run.Response()
//
// Events can be written as Server-Sent Events with StreamSSE.
package promptl
