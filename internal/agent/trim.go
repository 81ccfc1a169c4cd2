package agent

import "github.com/ledgerline/mosaic/internal/llm"

// HistoryPlaceholder is what stale tool payloads become once trimmed.
// It stays under the trim threshold so trimming is idempotent.
const HistoryPlaceholder = "[content truncated from history to stay within context limit - already processed]"

// trimThreshold is the payload length above which a stale tool result
// is eligible for replacement. Short results are cheap to keep and
// often carry state the model refers back to (ids, paths, counts).
const trimThreshold = 300

// TrimHistory enforces an approximate size ceiling on a conversation.
// At or below the budget the conversation is returned unchanged. Above
// it, every tool-result payload longer than the threshold is replaced
// with HistoryPlaceholder, except in the two most recent messages:
// those are always the just-issued calls and their results, which the
// model still needs in full. The input is never mutated.
func TrimHistory(conversation []llm.Message, budget int) []llm.Message {
	size := 0
	for _, m := range conversation {
		size += m.ApproxSize()
	}
	if size <= budget {
		return conversation
	}

	keep := len(conversation) - 2
	out := make([]llm.Message, len(conversation))
	copy(out, conversation)
	for i := 0; i < keep; i++ {
		out[i] = trimMessage(out[i])
	}
	return out
}

// trimMessage compresses oversized tool payloads in one message,
// copying blocks before touching them so shared history stays intact.
func trimMessage(m llm.Message) llm.Message {
	if m.Role == llm.RoleTool {
		if len(m.Content) > trimThreshold {
			m.Content = HistoryPlaceholder
		}
		return m
	}
	if len(m.Blocks) == 0 {
		return m
	}

	var blocks []llm.Block
	for i, b := range m.Blocks {
		if b.Kind != llm.BlockToolResult || b.Result == nil || len(b.Result.Content) <= trimThreshold {
			continue
		}
		if blocks == nil {
			blocks = make([]llm.Block, len(m.Blocks))
			copy(blocks, m.Blocks)
		}
		r := *b.Result
		r.Content = HistoryPlaceholder
		blocks[i].Result = &r
	}
	if blocks != nil {
		m.Blocks = blocks
	}
	return m
}
