package orchestrator

import "github.com/firebase/genkit/go/ai"

// deepCopyMessages copies messages and their parts. Genkit's message
// rendering mutates msg.Content in place, so concurrent turns sharing
// cached history objects would race without independent copies.
func deepCopyMessages(msgs []*ai.Message) []*ai.Message {
	if msgs == nil {
		return nil
	}
	copied := make([]*ai.Message, len(msgs))
	for i, msg := range msgs {
		parts := make([]*ai.Part, len(msg.Content))
		for j, part := range msg.Content {
			parts[j] = deepCopyPart(part)
		}
		copied[i] = &ai.Message{
			Role:     msg.Role,
			Content:  parts,
			Metadata: shallowCopyMap(msg.Metadata),
		}
	}
	return copied
}

// deepCopyPart copies one part. ToolRequest.Input and ToolResponse.Output
// are copied by reference: rendering only mutates the Content slice, and
// tool payloads are JSON primitives that nothing mutates after dispatch.
func deepCopyPart(p *ai.Part) *ai.Part {
	if p == nil {
		return nil
	}
	cp := &ai.Part{
		Kind:        p.Kind,
		ContentType: p.ContentType,
		Text:        p.Text,
		Custom:      shallowCopyMap(p.Custom),
		Metadata:    shallowCopyMap(p.Metadata),
	}
	if p.ToolRequest != nil {
		cp.ToolRequest = &ai.ToolRequest{
			Name:  p.ToolRequest.Name,
			Ref:   p.ToolRequest.Ref,
			Input: p.ToolRequest.Input,
		}
	}
	if p.ToolResponse != nil {
		cp.ToolResponse = &ai.ToolResponse{
			Name:   p.ToolResponse.Name,
			Ref:    p.ToolResponse.Ref,
			Output: p.ToolResponse.Output,
		}
	}
	return cp
}

func shallowCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
