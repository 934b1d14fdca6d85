package outbox

import "github.com/chwnex/project-exercisetracker/internal/events"

type schemaMeta struct {
	Subject string
	Schema  string
}

var schemaCatalog = map[string]schemaMeta{
	events.TypeUserRegistered: {Subject: "user_events-value", Schema: userRegisteredSchema},
	events.TypeExerciseLogged: {Subject: "exercise_events-value", Schema: exerciseLoggedSchema},
}

const userRegisteredSchema = `{
  "type": "object",
  "title": "UserRegistered",
  "properties": {
    "user_id": {"type": "string"},
    "username": {"type": "string"},
    "registered_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "username", "registered_at"],
  "additionalProperties": false
}`

const exerciseLoggedSchema = `{
  "type": "object",
  "title": "ExerciseLogged",
  "properties": {
    "entry_id": {"type": "string"},
    "user_id": {"type": "string"},
    "description": {"type": "string"},
    "duration_min": {"type": "integer", "minimum": 1},
    "date": {"type": "string", "format": "date"},
    "logged_at": {"type": "string", "format": "date-time"}
  },
  "required": ["entry_id", "user_id", "description", "duration_min", "date", "logged_at"],
  "additionalProperties": false
}`
