package prompts

import (
	"fmt"
	"time"

	"github.com/chronograph-io/chronograph/pkg/types"
)

// JudgeContradiction builds the contradiction-vs-corroboration judgment
// over a new fact and one existing open fact between the same entity
// pair. A contradiction closes the older edge as of the new edge's
// valid time.
func JudgeContradiction(newEdge, existing *types.Edge) []types.Message {
	system := `You compare two facts about the same pair of entities and decide whether the new fact contradicts the existing one.
Reply with JSON: {"contradicts": true} or {"contradicts": false}.
Contradiction means both cannot be true at the same time (a replacement, an ended state, a changed value). Restating or refining the same fact is corroboration, not contradiction.`

	user := fmt.Sprintf(`<EXISTING FACT valid_since=%q>
%s
</EXISTING FACT>
<NEW FACT valid_since=%q>
%s
</NEW FACT>`,
		existing.ValidAt.Format(time.RFC3339), existing.Fact,
		newEdge.ValidAt.Format(time.RFC3339), newEdge.Fact)

	return []types.Message{
		types.NewSystemMessage(system),
		types.NewUserMessage(user),
	}
}
