package prompts

import (
	"fmt"
	"strings"

	"github.com/chronograph-io/chronograph/pkg/types"
)

// JudgeDuplicate builds the same-entity judgment for one candidate
// against its shortlist of similarly-named existing entities. The reply
// is either the uuid of the matching entity or empty for "new".
func JudgeDuplicate(candidate *types.Node, shortlist []*types.Node, episodeContent string) []types.Message {
	system := `You decide whether a newly extracted entity is the same real-world entity as one already in a knowledge graph.
Reply with JSON: {"match_uuid": "uuid-of-existing-entity"} or {"match_uuid": ""} if it is a new entity.
Match only when you are confident they refer to the same real-world entity. Different people or organizations with similar names are NOT matches.`

	var sb strings.Builder
	fmt.Fprintf(&sb, "<NEW ENTITY>\nname: %s\nlabel: %s\nsummary: %s\n</NEW ENTITY>\n",
		candidate.Name, candidate.PrimaryLabel(), candidate.Summary)
	sb.WriteString("<EXISTING ENTITIES>\n")
	for _, node := range shortlist {
		fmt.Fprintf(&sb, "uuid: %s | name: %s | label: %s | summary: %s\n",
			node.UUID, node.Name, node.PrimaryLabel(), node.Summary)
	}
	sb.WriteString("</EXISTING ENTITIES>\n")
	if episodeContent != "" {
		fmt.Fprintf(&sb, "<EPISODE CONTEXT>\n%s\n</EPISODE CONTEXT>\n", episodeContent)
	}

	return []types.Message{
		types.NewSystemMessage(system),
		types.NewUserMessage(sb.String()),
	}
}
