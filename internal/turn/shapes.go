package turn

import "github.com/antoniostano/thicket/internal/extract"

var intentShape = extract.MustShape("intent", `{
	"type": "object",
	"required": ["npc", "thought", "action"],
	"properties": {
		"npc": {"type": "string"},
		"thought": {"type": "string"},
		"action": {"type": "string"},
		"dialogue": {"type": ["string", "null"]}
	}
}`)

var resolutionShape = extract.MustShape("resolution", `{
	"type": "object",
	"required": ["reality", "state_changes", "contracts", "next_prompts"],
	"properties": {
		"reality": {"type": "string"},
		"state_changes": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["npc", "location", "activity"],
				"properties": {
					"npc": {"type": "string"},
					"location": {"type": "string"},
					"activity": {"type": "string"}
				}
			}
		},
		"contracts": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "participants", "action"],
				"properties": {
					"id": {"type": ["string", "null"]},
					"participants": {"type": "array", "items": {"type": "string"}},
					"action": {"type": "string"},
					"transcript_entry": {
						"type": ["object", "null"],
						"required": ["reality", "details"],
						"properties": {
							"reality": {"type": "string"},
							"details": {
								"type": "object",
								"additionalProperties": {
									"type": "object",
									"required": ["action"],
									"properties": {
										"action": {"type": "string"},
										"dialogue": {"type": ["string", "null"]}
									}
								}
							}
						}
					}
				}
			}
		},
		"next_prompts": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		}
	}
}`)
