package events

const webhookSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["provider", "type", "connectionId"],
  "properties": {
    "provider": {"type": "string", "minLength": 1},
    "type": {
      "enum": [
        "sync.success",
        "sync.error",
        "auth.success",
        "auth.error",
        "connection.deleted",
        "webhook.forward",
        "auth",
        "sync"
      ]
    },
    "connectionId": {"type": "string", "minLength": 1},
    "syncJobId": {"type": "string"},
    "data": true,
    "error": {
      "type": "object",
      "required": ["message", "code"],
      "properties": {
        "message": {"type": "string"},
        "code": {"type": "string"}
      }
    },
    "modifiedAfter": {"type": "string"},
    "createdAt": {"type": "string"}
  }
}`
