package apidoc

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "schemes": {{ marshal .Schemes }},
    "securityDefinitions": {
        "Bearer": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/attendance/scans": {
            "post": {
                "tags": ["attendance"],
                "summary": "Record a scan as entry or exit",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/RecordScanRequest"}}],
                "responses": {
                    "201": {"description": "entry recorded", "schema": {"$ref": "#/definitions/ScanResponse"}},
                    "200": {"description": "exit recorded", "schema": {"$ref": "#/definitions/ScanResponse"}},
                    "400": {"description": "invalid argument or timestamp", "schema": {"$ref": "#/definitions/Error"}},
                    "409": {"description": "concurrent scans, retry", "schema": {"$ref": "#/definitions/Error"}},
                    "503": {"description": "storage unavailable", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/attendance": {
            "get": {
                "tags": ["attendance"],
                "summary": "List records whose entry falls on a local day",
                "parameters": [{"in": "query", "name": "on", "type": "string", "description": "YYYY-MM-DD or today"}],
                "responses": {
                    "200": {"description": "records, newest entry first", "schema": {"$ref": "#/definitions/DayList"}},
                    "400": {"description": "bad date", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/attendance/stats": {
            "get": {
                "tags": ["attendance"],
                "summary": "Entry, exit and inside counts for a day",
                "parameters": [{"in": "query", "name": "on", "type": "string"}],
                "responses": {"200": {"description": "counts", "schema": {"$ref": "#/definitions/DayStats"}}}
            }
        },
        "/attendance/export": {
            "get": {
                "tags": ["reports"],
                "summary": "Export a day as CSV",
                "security": [{"Bearer": []}],
                "produces": ["text/csv"],
                "parameters": [
                    {"in": "query", "name": "on", "type": "string"},
                    {"in": "query", "name": "encoding", "type": "string", "enum": ["utf8", "sjis"]}
                ],
                "responses": {"200": {"description": "CSV file"}}
            }
        },
        "/people/{person_id}/attendance": {
            "get": {
                "tags": ["attendance"],
                "summary": "History of one person, newest first",
                "parameters": [
                    {"in": "path", "name": "person_id", "type": "string", "required": true},
                    {"in": "query", "name": "limit", "type": "integer"}
                ],
                "responses": {"200": {"description": "records", "schema": {"$ref": "#/definitions/PersonHistory"}}}
            },
            "delete": {
                "tags": ["attendance"],
                "summary": "Delete every record of a person",
                "security": [{"Bearer": []}],
                "parameters": [{"in": "path", "name": "person_id", "type": "string", "required": true}],
                "responses": {"200": {"description": "deleted count"}}
            }
        },
        "/checkpoint/scans": {
            "post": {
                "tags": ["checkpoint"],
                "summary": "Validate code, resolve person, gate on face match, then record",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/CheckpointScanRequest"}}],
                "responses": {
                    "201": {"description": "entry recorded"},
                    "200": {"description": "exit recorded"},
                    "400": {"description": "invalid_code"},
                    "403": {"description": "verification_failed"},
                    "404": {"description": "unknown_person"}
                }
            }
        },
        "/people": {
            "get": {
                "tags": ["people"],
                "summary": "Search people",
                "security": [{"Bearer": []}],
                "parameters": [
                    {"in": "query", "name": "enrollment_code", "type": "string"},
                    {"in": "query", "name": "phone", "type": "string"},
                    {"in": "query", "name": "limit", "type": "integer"},
                    {"in": "query", "name": "offset", "type": "integer"}
                ],
                "responses": {"200": {"description": "people"}}
            },
            "post": {
                "tags": ["people"],
                "summary": "Register a person",
                "security": [{"Bearer": []}],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterPerson"}}],
                "responses": {"201": {"description": "registered"}, "409": {"description": "enrollment code taken"}}
            }
        },
        "/people/{person_id}": {
            "get": {
                "tags": ["people"],
                "summary": "Get a person",
                "parameters": [{"in": "path", "name": "person_id", "type": "string", "required": true}],
                "responses": {"200": {"description": "person"}, "404": {"description": "not found"}}
            },
            "patch": {
                "tags": ["people"],
                "summary": "Update display name, photo or phone",
                "security": [{"Bearer": []}],
                "parameters": [{"in": "path", "name": "person_id", "type": "string", "required": true}],
                "responses": {"200": {"description": "person"}}
            },
            "delete": {
                "tags": ["people"],
                "summary": "Delete a person and purge their attendance",
                "security": [{"Bearer": []}],
                "parameters": [{"in": "path", "name": "person_id", "type": "string", "required": true}],
                "responses": {"200": {"description": "purged record count"}}
            }
        },
        "/people/lookup": {
            "post": {
                "tags": ["people"],
                "summary": "Find a person by enrollment code and phone (student portal)",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"type": "object", "required": ["enrollment_code", "phone"], "properties": {"enrollment_code": {"type": "string"}, "phone": {"type": "string"}}}}],
                "responses": {"200": {"description": "person"}, "400": {"description": "missing field"}, "404": {"description": "no match"}}
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["auth"],
                "summary": "Issue a JWT",
                "responses": {"200": {"description": "token"}, "401": {"description": "bad credentials"}}
            }
        }
    },
    "definitions": {
        "Error": {
            "type": "object",
            "properties": {
                "error": {"type": "object", "properties": {"code": {"type": "string"}, "message": {"type": "string"}}}
            }
        },
        "RecordScanRequest": {
            "type": "object",
            "required": ["person_id", "display_name"],
            "properties": {
                "person_id": {"type": "string"},
                "display_name": {"type": "string"},
                "verification_method": {"type": "string", "example": "qr_and_face"},
                "confidence_score": {"type": "number", "minimum": 0, "maximum": 100},
                "occurred_at": {"type": "string", "format": "date-time"},
                "station_id": {"type": "string", "example": "main_entrance"},
                "student_id": {"type": "string", "description": "alias of person_id"},
                "student_name": {"type": "string", "description": "alias of display_name"},
                "face_match_score": {"type": "number", "description": "alias of confidence_score"}
            }
        },
        "Record": {
            "type": "object",
            "properties": {
                "record_id": {"type": "string"},
                "person_id": {"type": "string"},
                "display_name": {"type": "string"},
                "entry_time": {"type": "string", "format": "date-time"},
                "exit_time": {"type": "string", "format": "date-time", "x-nullable": true},
                "status": {"type": "string", "enum": ["inside", "exited"]},
                "verification_method": {"type": "string"},
                "confidence_score": {"type": "number", "x-nullable": true},
                "station_id": {"type": "string"}
            }
        },
        "ScanResponse": {
            "allOf": [
                {"$ref": "#/definitions/Record"},
                {"type": "object", "properties": {"outcome": {"type": "string", "enum": ["entry", "exit"]}}}
            ]
        },
        "DayList": {
            "type": "object",
            "properties": {
                "date": {"type": "string"},
                "count": {"type": "integer"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/Record"}}
            }
        },
        "PersonHistory": {
            "type": "object",
            "properties": {
                "person_id": {"type": "string"},
                "count": {"type": "integer"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/Record"}}
            }
        },
        "DayStats": {
            "type": "object",
            "properties": {
                "date": {"type": "string"},
                "entries": {"type": "integer"},
                "exits": {"type": "integer"},
                "inside": {"type": "integer"},
                "unique_people": {"type": "integer"}
            }
        },
        "CheckpointScanRequest": {
            "type": "object",
            "properties": {
                "enrollment_code": {"type": "string", "example": "APP20240001"},
                "confidence_score": {"type": "number"},
                "verification_method": {"type": "string"},
                "station_id": {"type": "string"},
                "occurred_at": {"type": "string", "format": "date-time"}
            }
        },
        "RegisterPerson": {
            "type": "object",
            "required": ["enrollment_code", "display_name"],
            "properties": {
                "enrollment_code": {"type": "string"},
                "display_name": {"type": "string"},
                "photo_ref": {"type": "string"},
                "phone": {"type": "string"}
            }
        }
    }
}`
