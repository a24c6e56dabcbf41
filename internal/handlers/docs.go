package handlers

import (
	"encoding/json"
	"net/http"
)

type object = map[string]interface{}

func queryParam(name, description string, schema object) object {
	return object{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    false,
		"schema":      schema,
	}
}

func schemaRef(name string) object {
	return object{"$ref": "#/components/schemas/" + name}
}

func jsonContent(schema object) object {
	return object{"application/json": object{"schema": schema}}
}

var paginationParams = []object{
	queryParam("page", "Page number (default: 1)", object{"type": "integer", "default": 1, "minimum": 1}),
	queryParam("limit", "Records per page (default: 100)", object{"type": "integer", "default": defaultLimit, "minimum": 1, "maximum": maxLimit}),
}

func listOperation(summary, description, itemSchema string, params ...object) object {
	return object{
		"get": object{
			"summary":     summary,
			"description": description,
			"parameters":  append(params, paginationParams...),
			"responses": object{
				"200": object{
					"description": "Successful response",
					"content": jsonContent(object{
						"allOf": []object{
							schemaRef("Page"),
							{"properties": object{"data": object{"type": "array", "items": schemaRef(itemSchema)}}},
						},
					}),
				},
				"400": object{"description": "Malformed filter or pagination", "content": jsonContent(schemaRef("Error"))},
				"404": object{"description": "No rows match the filter", "content": jsonContent(schemaRef("Error"))},
				"429": object{"description": "Rate limit exceeded", "content": jsonContent(schemaRef("Error"))},
			},
		},
	}
}

func openAPIDocument() object {
	stationParam := queryParam("station", "Exact station name", object{"type": "string"})

	return object{
		"openapi": "3.0.0",
		"info": object{
			"title":       "Weather API",
			"description": "Daily station observations and the yearly statistics derived from them",
			"version":     "1.0.0",
		},
		"servers": []object{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": object{
			"/api/weather": listOperation(
				"List weather observations",
				"Observations newest first, filterable by date and station",
				"Observation",
				queryParam("date", "Observation date (YYYY-MM-DD)", object{"type": "string", "format": "date"}),
				stationParam,
			),
			"/api/weather/stats": listOperation(
				"List yearly statistics",
				"Yearly aggregates per station, filterable by year and station",
				"YearlyStats",
				queryParam("year", "Calendar year", object{"type": "integer"}),
				stationParam,
			),
			"/api/stations": listOperation(
				"List stations",
				"Stations ordered by name",
				"Station",
			),
			"/health": object{
				"get": object{
					"summary": "Health check",
					"responses": object{
						"200": object{"description": "API and store are reachable"},
						"503": object{"description": "Store unreachable"},
					},
				},
			},
			"/metrics": object{
				"get": object{
					"summary": "Prometheus metrics",
					"responses": object{
						"200": object{
							"description": "Prometheus metrics in text format",
							"content":     object{"text/plain": object{"schema": object{"type": "string"}}},
						},
					},
				},
			},
		},
		"components": object{
			"schemas": object{
				"Page": object{
					"type": "object",
					"properties": object{
						"total":       object{"type": "integer"},
						"page":        object{"type": "integer"},
						"limit":       object{"type": "integer"},
						"total_pages": object{"type": "integer"},
					},
				},
				"Observation": object{
					"type": "object",
					"properties": object{
						"id":            object{"type": "integer"},
						"station":       object{"type": "string"},
						"date":          object{"type": "string", "format": "date", "nullable": true},
						"max_temp":      object{"type": "integer", "nullable": true, "description": "Tenths of a degree Celsius"},
						"min_temp":      object{"type": "integer", "nullable": true, "description": "Tenths of a degree Celsius"},
						"precipitation": object{"type": "integer", "nullable": true, "description": "Hundredths of a unit"},
					},
				},
				"YearlyStats": object{
					"type": "object",
					"properties": object{
						"id":                  object{"type": "integer"},
						"station":             object{"type": "string"},
						"year":                object{"type": "integer"},
						"avg_max_temp":        object{"type": "number", "description": "Degrees Celsius"},
						"avg_min_temp":        object{"type": "number", "description": "Degrees Celsius"},
						"total_precipitation": object{"type": "number"},
					},
				},
				"Station": object{
					"type": "object",
					"properties": object{
						"id":         object{"type": "integer"},
						"name":       object{"type": "string"},
						"created_at": object{"type": "string", "format": "date-time"},
					},
				},
				"Error": object{
					"type": "object",
					"properties": object{
						"error":   object{"type": "string"},
						"message": object{"type": "string"},
						"code":    object{"type": "integer"},
					},
				},
			},
		},
	}
}

// OpenAPISpec returns the OpenAPI 3.0 document for the API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(openAPIDocument())
}
