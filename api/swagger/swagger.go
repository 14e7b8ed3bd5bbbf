package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "ClearSpend Expense Approval API",
        "description": "Expense claims routed through configurable approval workflows",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and session info"},
        {"name": "Workflows", "description": "Approval workflow administration"},
        {"name": "Expenses", "description": "Expense submission and inspection"},
        {"name": "Approvals", "description": "Decision submission and approver queue"},
        {"name": "Notifications", "description": "Recipient notification feed"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "responses": {
                    "200": {"description": "Token issued"},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user claims",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/workflows": {
            "get": {
                "tags": ["Workflows"],
                "summary": "List workflows",
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "post": {
                "tags": ["Workflows"],
                "summary": "Create workflow",
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Invalid rule configuration"}
                }
            }
        },
        "/workflows/{id}": {
            "get": {
                "tags": ["Workflows"],
                "summary": "Get workflow",
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Workflows"],
                "summary": "Update workflow",
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/workflows/{id}/active": {
            "patch": {
                "tags": ["Workflows"],
                "summary": "Activate or deactivate workflow",
                "responses": {
                    "204": {"description": "Updated"}
                }
            }
        },
        "/workflows/defaults": {
            "post": {
                "tags": ["Workflows"],
                "summary": "Seed default three-tier workflow",
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/expenses": {
            "get": {
                "tags": ["Expenses"],
                "summary": "List expenses",
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "post": {
                "tags": ["Expenses"],
                "summary": "Submit expense",
                "responses": {
                    "201": {"description": "Created and routed"},
                    "422": {"description": "No applicable rule"}
                }
            }
        },
        "/expenses/{id}": {
            "get": {
                "tags": ["Expenses"],
                "summary": "Get expense",
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/expenses/{id}/history": {
            "get": {
                "tags": ["Expenses"],
                "summary": "Approval history",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/expenses/{id}/stats": {
            "get": {
                "tags": ["Expenses"],
                "summary": "Approval statistics",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/expenses/{id}/history/export": {
            "get": {
                "tags": ["Expenses"],
                "summary": "Export approval history as CSV or PDF",
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        },
        "/expenses/{id}/approvals": {
            "post": {
                "tags": ["Approvals"],
                "summary": "Submit approval decision",
                "responses": {
                    "200": {"description": "Decision recorded"},
                    "404": {"description": "No pending record for caller"},
                    "409": {"description": "Already processed"}
                }
            }
        },
        "/approvals/pending": {
            "get": {
                "tags": ["Approvals"],
                "summary": "Pending approvals queue",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List notifications",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/notifications/{id}/read": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Mark notification read",
                "responses": {
                    "204": {"description": "Updated"}
                }
            }
        }
    },
    "definitions": {
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
