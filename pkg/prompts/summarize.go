package prompts

import (
	"fmt"
	"strings"

	"github.com/chronograph-io/chronograph/pkg/types"
)

// MergeSummaries builds the exchange that regenerates an entity summary
// after a duplicate merge. Called only when the merge actually brings
// new descriptive content; equal or empty summaries never reach here.
func MergeSummaries(name string, existingSummary, incomingSummary string) []types.Message {
	system := `You merge two descriptions of the same entity into one concise summary.
Reply with JSON: {"summary": "..."}.
Keep every distinct piece of information; drop repetition; at most three sentences.`

	user := fmt.Sprintf("Entity: %s\n\nDescription A:\n%s\n\nDescription B:\n%s",
		name, existingSummary, incomingSummary)

	return []types.Message{
		types.NewSystemMessage(system),
		types.NewUserMessage(user),
	}
}

// SummarizeCommunity builds the exchange that names and summarizes a
// detected community from its most central members.
func SummarizeCommunity(members []*types.Node) []types.Message {
	system := `You summarize a cluster of related entities from a knowledge graph.
Reply with JSON: {"name": "short cluster name", "summary": "one paragraph"}.`

	var sb strings.Builder
	for _, m := range members {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", m.Name, m.PrimaryLabel(), m.Summary)
	}

	return []types.Message{
		types.NewSystemMessage(system),
		types.NewUserMessage("Members:\n" + sb.String()),
	}
}
