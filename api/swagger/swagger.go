package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "School Admin API",
        "description": "Grades, report cards and billing for a school administration",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {
            "name": "Authentication",
            "description": "Login and token lifecycle"
        },
        {
            "name": "SubjectLevels",
            "description": "Subject coefficients per level"
        },
        {
            "name": "Grades",
            "description": "Grade entry and class sheets"
        },
        {
            "name": "ReportCards",
            "description": "Generation, documents and exports of report cards"
        },
        {
            "name": "Billing",
            "description": "Invoices and payments"
        }
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": [
                    "Authentication"
                ],
                "summary": "Authenticate user",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/LoginRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": [
                    "Authentication"
                ],
                "summary": "Refresh access token",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/RefreshTokenRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": [
                    "Authentication"
                ],
                "summary": "Logout current session",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/RefreshTokenRequest"
                        }
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/auth/change-password": {
            "post": {
                "tags": [
                    "Authentication"
                ],
                "summary": "Change password",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ChangePasswordRequest"
                        }
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/auth/me": {
            "get": {
                "tags": [
                    "Authentication"
                ],
                "summary": "Get current user",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/subject-levels": {
            "get": {
                "tags": [
                    "SubjectLevels"
                ],
                "summary": "List subject level configurations",
                "parameters": [
                    {
                        "name": "levelId",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "subjectId",
                        "in": "query",
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "post": {
                "tags": [
                    "SubjectLevels"
                ],
                "summary": "Configure a subject for a level",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateSubjectLevelRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/subject-levels/{id}": {
            "get": {
                "tags": [
                    "SubjectLevels"
                ],
                "summary": "Get subject level configuration",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "put": {
                "tags": [
                    "SubjectLevels"
                ],
                "summary": "Change a subject coefficient",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpdateSubjectLevelRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "delete": {
                "tags": [
                    "SubjectLevels"
                ],
                "summary": "Remove a subject level configuration",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/grades": {
            "get": {
                "tags": [
                    "Grades"
                ],
                "summary": "List grades",
                "parameters": [
                    {
                        "name": "enrollmentId",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "subjectLevelId",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "sessionId",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer"
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "post": {
                "tags": [
                    "Grades"
                ],
                "summary": "Record a grade",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateGradeRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/grades/bulk": {
            "post": {
                "tags": [
                    "Grades"
                ],
                "summary": "Upsert many grades at once",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/BulkGradeRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/grades/{id}": {
            "get": {
                "tags": [
                    "Grades"
                ],
                "summary": "Get grade",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "put": {
                "tags": [
                    "Grades"
                ],
                "summary": "Update grade",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpdateGradeRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "delete": {
                "tags": [
                    "Grades"
                ],
                "summary": "Delete grade",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/grades/enrollment/{enrollmentId}": {
            "get": {
                "tags": [
                    "Grades"
                ],
                "summary": "Grades of one enrollment",
                "parameters": [
                    {
                        "name": "enrollmentId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/grades/class/{classId}/subject/{subjectId}/session/{sessionId}": {
            "get": {
                "tags": [
                    "Grades"
                ],
                "summary": "Class grade sheet",
                "parameters": [
                    {
                        "name": "classId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "subjectId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "sessionId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/grades/class/{classId}/subject-level/{subjectLevelId}/session/{sessionId}/statistics": {
            "get": {
                "tags": [
                    "Grades"
                ],
                "summary": "Class statistics for a subject",
                "parameters": [
                    {
                        "name": "classId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "subjectLevelId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "sessionId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/report-cards": {
            "get": {
                "tags": [
                    "ReportCards"
                ],
                "summary": "List report cards",
                "parameters": [
                    {
                        "name": "sessionId",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "classId",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "decision",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer"
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "post": {
                "tags": [
                    "ReportCards"
                ],
                "summary": "Create a report card manually",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateReportCardRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/report-cards/{id}": {
            "get": {
                "tags": [
                    "ReportCards"
                ],
                "summary": "Report card detail",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "put": {
                "tags": [
                    "ReportCards"
                ],
                "summary": "Update a report card",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpdateReportCardRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "delete": {
                "tags": [
                    "ReportCards"
                ],
                "summary": "Delete a report card",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/report-cards/{id}/pdf": {
            "get": {
                "tags": [
                    "ReportCards"
                ],
                "summary": "Download a report card as PDF",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "produces": [
                    "application/pdf"
                ],
                "responses": {
                    "200": {
                        "description": "File"
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/report-cards/enrollment/{enrollmentId}": {
            "get": {
                "tags": [
                    "ReportCards"
                ],
                "summary": "Report cards of one enrollment",
                "parameters": [
                    {
                        "name": "enrollmentId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/report-cards/class/{classId}/session/{sessionId}": {
            "get": {
                "tags": [
                    "ReportCards"
                ],
                "summary": "Ranked report cards of a class",
                "parameters": [
                    {
                        "name": "classId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "sessionId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/report-cards/class/{classId}/session/{sessionId}/pdf": {
            "get": {
                "tags": [
                    "ReportCards"
                ],
                "summary": "Class report cards as one PDF",
                "parameters": [
                    {
                        "name": "classId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "sessionId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "produces": [
                    "application/pdf"
                ],
                "responses": {
                    "200": {
                        "description": "File"
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/report-cards/generate/class/{classId}/session/{sessionId}": {
            "post": {
                "tags": [
                    "ReportCards"
                ],
                "summary": "Generate the report cards of a class",
                "parameters": [
                    {
                        "name": "classId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "sessionId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/GenerateReportCardsRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/report-cards/export": {
            "post": {
                "tags": [
                    "ReportCards"
                ],
                "summary": "Queue a class report card export",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ExportRequest"
                        }
                    }
                ],
                "responses": {
                    "202": {
                        "description": "Accepted",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/report-cards/export/{id}": {
            "get": {
                "tags": [
                    "ReportCards"
                ],
                "summary": "Export job status",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/export/{token}": {
            "get": {
                "tags": [
                    "ReportCards"
                ],
                "summary": "Download a finished export",
                "parameters": [
                    {
                        "name": "token",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "produces": [
                    "application/octet-stream"
                ],
                "responses": {
                    "200": {
                        "description": "File"
                    }
                }
            }
        },
        "/invoices": {
            "get": {
                "tags": [
                    "Billing"
                ],
                "summary": "List invoices",
                "parameters": [
                    {
                        "name": "status",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "enrollmentId",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "from",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "to",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer"
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "post": {
                "tags": [
                    "Billing"
                ],
                "summary": "Issue an invoice",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateInvoiceRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/invoices/statistics": {
            "get": {
                "tags": [
                    "Billing"
                ],
                "summary": "Invoice totals by status",
                "parameters": [
                    {
                        "name": "academicYearId",
                        "in": "query",
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/invoices/{id}": {
            "get": {
                "tags": [
                    "Billing"
                ],
                "summary": "Get invoice with its balance",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "put": {
                "tags": [
                    "Billing"
                ],
                "summary": "Update an invoice without payments",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpdateInvoiceRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "delete": {
                "tags": [
                    "Billing"
                ],
                "summary": "Delete an invoice without payments",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/invoices/{id}/pdf": {
            "get": {
                "tags": [
                    "Billing"
                ],
                "summary": "Download an invoice as PDF",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "produces": [
                    "application/pdf"
                ],
                "responses": {
                    "200": {
                        "description": "File"
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/invoices/{id}/mark-paid": {
            "post": {
                "tags": [
                    "Billing"
                ],
                "summary": "Mark an invoice as paid",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/invoices/enrollment/{enrollmentId}": {
            "get": {
                "tags": [
                    "Billing"
                ],
                "summary": "Invoices of one enrollment",
                "parameters": [
                    {
                        "name": "enrollmentId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/payments": {
            "get": {
                "tags": [
                    "Billing"
                ],
                "summary": "List payments",
                "parameters": [
                    {
                        "name": "enrollmentId",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "invoiceId",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "method",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "from",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "to",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer"
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "post": {
                "tags": [
                    "Billing"
                ],
                "summary": "Record a payment",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreatePaymentRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/payments/{id}": {
            "get": {
                "tags": [
                    "Billing"
                ],
                "summary": "Get payment",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "delete": {
                "tags": [
                    "Billing"
                ],
                "summary": "Delete a payment",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/enrollments/{id}/certificate": {
            "get": {
                "tags": [
                    "Enrollments"
                ],
                "summary": "Download an enrollment certificate",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "produces": [
                    "application/pdf"
                ],
                "responses": {
                    "200": {
                        "description": "File"
                    },
                    "404": {
                        "description": "Not Found"
                    },
                    "412": {
                        "description": "Enrollment is not active"
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/payments/{id}/receipt": {
            "get": {
                "tags": [
                    "Billing"
                ],
                "summary": "Download a payment receipt",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "produces": [
                    "application/pdf"
                ],
                "responses": {
                    "200": {
                        "description": "File"
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/payments/enrollment/{enrollmentId}": {
            "get": {
                "tags": [
                    "Billing"
                ],
                "summary": "Payments of one enrollment",
                "parameters": [
                    {
                        "name": "enrollmentId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {
                    "type": "string"
                },
                "password": {
                    "type": "string"
                }
            }
        },
        "RefreshTokenRequest": {
            "type": "object",
            "properties": {
                "refresh_token": {
                    "type": "string"
                }
            }
        },
        "ChangePasswordRequest": {
            "type": "object",
            "properties": {
                "old_password": {
                    "type": "string"
                },
                "new_password": {
                    "type": "string"
                }
            }
        },
        "CreateSubjectLevelRequest": {
            "type": "object",
            "properties": {
                "subject_id": {
                    "type": "string"
                },
                "level_id": {
                    "type": "string"
                },
                "coefficient": {
                    "type": "integer"
                }
            }
        },
        "UpdateSubjectLevelRequest": {
            "type": "object",
            "properties": {
                "coefficient": {
                    "type": "integer"
                }
            }
        },
        "CreateGradeRequest": {
            "type": "object",
            "properties": {
                "enrollment_id": {
                    "type": "string"
                },
                "subject_level_id": {
                    "type": "string"
                },
                "session_id": {
                    "type": "string"
                },
                "value": {
                    "type": "number"
                },
                "remark": {
                    "type": "string"
                },
                "recorded_at": {
                    "type": "string",
                    "format": "date-time"
                }
            }
        },
        "UpdateGradeRequest": {
            "type": "object",
            "properties": {
                "value": {
                    "type": "number"
                },
                "remark": {
                    "type": "string"
                },
                "recorded_at": {
                    "type": "string",
                    "format": "date-time"
                }
            }
        },
        "BulkGradeRequest": {
            "type": "object",
            "properties": {
                "grades": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/CreateGradeRequest"
                    }
                }
            }
        },
        "CreateReportCardRequest": {
            "type": "object",
            "properties": {
                "enrollment_id": {
                    "type": "string"
                },
                "session_id": {
                    "type": "string"
                },
                "average": {
                    "type": "number"
                },
                "rank": {
                    "type": "integer"
                },
                "general_remark": {
                    "type": "string"
                },
                "edition_date": {
                    "type": "string",
                    "format": "date-time"
                },
                "decision": {
                    "type": "string",
                    "enum": [
                        "PROMOTE",
                        "REPEAT",
                        "PENDING"
                    ]
                }
            }
        },
        "UpdateReportCardRequest": {
            "type": "object",
            "properties": {
                "average": {
                    "type": "number"
                },
                "rank": {
                    "type": "integer"
                },
                "general_remark": {
                    "type": "string"
                },
                "edition_date": {
                    "type": "string",
                    "format": "date-time"
                },
                "decision": {
                    "type": "string",
                    "enum": [
                        "PROMOTE",
                        "REPEAT",
                        "PENDING"
                    ]
                }
            }
        },
        "ReportCardOverride": {
            "type": "object",
            "properties": {
                "decision": {
                    "type": "string",
                    "enum": [
                        "PROMOTE",
                        "REPEAT",
                        "PENDING"
                    ]
                },
                "general_remark": {
                    "type": "string"
                }
            }
        },
        "GenerateReportCardsRequest": {
            "type": "object",
            "properties": {
                "edition_date": {
                    "type": "string",
                    "format": "date-time"
                },
                "overrides": {
                    "type": "object",
                    "additionalProperties": {
                        "$ref": "#/definitions/ReportCardOverride"
                    }
                }
            }
        },
        "ExportRequest": {
            "type": "object",
            "properties": {
                "class_id": {
                    "type": "string"
                },
                "session_id": {
                    "type": "string"
                },
                "format": {
                    "type": "string",
                    "enum": [
                        "csv",
                        "pdf"
                    ]
                }
            }
        },
        "CreateInvoiceRequest": {
            "type": "object",
            "properties": {
                "enrollment_id": {
                    "type": "string"
                },
                "number": {
                    "type": "string"
                },
                "issued_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "total_amount": {
                    "type": "number"
                }
            }
        },
        "UpdateInvoiceRequest": {
            "type": "object",
            "properties": {
                "number": {
                    "type": "string"
                },
                "issued_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "total_amount": {
                    "type": "number"
                }
            }
        },
        "CreatePaymentRequest": {
            "type": "object",
            "properties": {
                "enrollment_id": {
                    "type": "string"
                },
                "invoice_id": {
                    "type": "string"
                },
                "amount": {
                    "type": "number"
                },
                "paid_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "method": {
                    "type": "string",
                    "enum": [
                        "CASH",
                        "CHEQUE",
                        "TRANSFER"
                    ]
                },
                "reference": {
                    "type": "string"
                },
                "period": {
                    "type": "string"
                },
                "description": {
                    "type": "string"
                }
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {
                    "type": "integer"
                },
                "page_size": {
                    "type": "integer"
                },
                "total_count": {
                    "type": "integer"
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "pagination": {
                    "$ref": "#/definitions/Pagination"
                },
                "meta": {
                    "type": "object"
                }
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
