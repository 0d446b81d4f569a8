package otel

import "go.opentelemetry.io/otel/attribute"

const (
	keyThreadID     = attribute.Key("workflow.thread_id")
	keyNode         = attribute.Key("workflow.node")
	keyNext         = attribute.Key("workflow.next")
	keyLLMType      = attribute.Key("llm.type")
	keyLLMStreamed  = attribute.Key("llm.streamed")
	keyInputTokens  = attribute.Key("llm.input_tokens")
	keyOutputTokens = attribute.Key("llm.output_tokens")
	keyToolName     = attribute.Key("tool.name")
	keyToolArgs     = attribute.Key("tool.args")
	keyEventData    = attribute.Key("event.data")
)

// jsonAttr marshals v into a string attribute. ok is false when v is nil or
// cannot be marshaled.
func jsonAttr(key attribute.Key, v any) (kv attribute.KeyValue, ok bool) {
	if v == nil {
		return kv, false
	}
	raw, err := marshal(v)
	if err != nil {
		return kv, false
	}
	return key.String(raw), true
}
