package extraction

import (
	"fmt"
	"strings"

	"github.com/emorobcare/companion/internal/docstore"
)

type entityResponse struct {
	Entities []Entity `json:"entities"`
}

type relationshipResponse struct {
	Relationships []Relationship `json:"relationships"`
}

const entitySystemPrompt = `You extract structured facts from conversations between a child and a companion robot.
Return ONLY a JSON object, no prose, with this shape:
{"entities": [{"name": "...", "type": "...", "confidence": 0.0}]}
Valid types: person, place, activity, emotion, topic, object, concept.
Confidence is your certainty between 0 and 1. Skip anything you are not sure about.`

const relationshipSystemPrompt = `You link extracted entities to the child or to each other.
Return ONLY a JSON object, no prose, with this shape:
{"relationships": [{"subject": "...", "predicate": "...", "object": "...", "confidence": 0.0}]}
Valid predicates: likes, dislikes, part_of, related_to, experienced, mentioned, feels, knows, does.
Use "child" as the subject when the fact is about the child. Confidence is between 0 and 1.`

func entityPrompt(conv docstore.Conversation, transcript string) string {
	return fmt.Sprintf("Conversation topic: %s\nChild: %s\n\nTranscript:\n%s\n\nExtract the entities.",
		conv.Topic, conv.ChildID, transcript)
}

func relationshipPrompt(conv docstore.Conversation, transcript string, entities []Entity) string {
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, fmt.Sprintf("%s (%s)", e.Name, e.Type))
	}
	return fmt.Sprintf("Conversation topic: %s\nChild: %s\nEntities: %s\n\nTranscript:\n%s\n\nExtract the relationships.",
		conv.Topic, conv.ChildID, strings.Join(names, ", "), transcript)
}
