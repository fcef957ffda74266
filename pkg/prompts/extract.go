// Package prompts builds the chat exchanges sent to the language-model
// capability. Each builder returns messages only; issuing the call and
// decoding the reply belong to the caller. Interchange is JSON because
// every provider client can repair and decode it reliably.
package prompts

import (
	"fmt"
	"strings"
	"time"

	"github.com/chronograph-io/chronograph/pkg/types"
)

// ExtractEntities builds the extraction exchange for one episode. Prior
// episodes give the model coreference context ("she", "the company").
// Declared entity-type labels constrain the label vocabulary; hints
// carries entity names a reflexion pass flagged as missed.
func ExtractEntities(episode *types.Node, previous []*types.Node, schemas types.SchemaSet, hints []string) []types.Message {
	system := `You extract entities and relationships from text into a knowledge graph.
Reply with JSON:
{"entities": [{"name": "...", "label": "...", "summary": "...", "attributes": {}}],
 "relationships": [{"source_entity": "...", "target_entity": "...", "name": "RELATION_NAME", "fact": "...", "valid_at": "RFC3339 timestamp or null"}]}

Rules:
- Extract only entities explicitly named or clearly referenced in the CURRENT EPISODE.
- Resolve pronouns and references using PREVIOUS EPISODES, but do not extract entities that appear only there.
- Relationship names are SCREAMING_SNAKE_CASE verbs; facts are single complete sentences.
- valid_at is when the relationship became true in the real world, if the text says so; otherwise null.`

	var user strings.Builder
	if len(previous) > 0 {
		user.WriteString("<PREVIOUS EPISODES>\n")
		for _, p := range previous {
			fmt.Fprintf(&user, "[%s] %s\n", p.Reference.Format(time.RFC3339), p.Content)
		}
		user.WriteString("</PREVIOUS EPISODES>\n")
	}
	fmt.Fprintf(&user, "<CURRENT EPISODE reference_time=%q>\n%s\n</CURRENT EPISODE>\n",
		episode.Reference.Format(time.RFC3339), episode.Content)

	if len(schemas) > 0 {
		fmt.Fprintf(&user, "<ENTITY TYPES>\n%s</ENTITY TYPES>\n", schemas.Describe())
	}
	if len(hints) > 0 {
		fmt.Fprintf(&user, "\nA previous pass missed these entities; include them: %s\n",
			strings.Join(hints, ", "))
	}

	return []types.Message{
		types.NewSystemMessage(system),
		types.NewUserMessage(user.String()),
	}
}

// Reflexion asks whether the extraction pass missed any obviously-named
// entity. An empty missed_entities list terminates the loop.
func Reflexion(episode *types.Node, extractedNames []string) []types.Message {
	system := `You review an entity-extraction pass for omissions.
Reply with JSON: {"missed_entities": ["name", ...]}.
List only entities explicitly named in the episode that are absent from the extracted list. If none were missed, return an empty list.`

	user := fmt.Sprintf("<EPISODE>\n%s\n</EPISODE>\n<EXTRACTED>\n%s\n</EXTRACTED>",
		episode.Content, strings.Join(extractedNames, "\n"))

	return []types.Message{
		types.NewSystemMessage(system),
		types.NewUserMessage(user),
	}
}
