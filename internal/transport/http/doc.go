// Package http implements the HTTP handlers for the voxd status API.
// It is a thin layer between transport and the license machinery: parse
// the request, call into the license cache, verifier or machine identity,
// and render the result.
//
// A typical request flows through these layers:
//
//	HTTP Request → Chi Router → Middleware → Handler → license/machineid
//	                                              ↓
//	HTTP Response ← render.JSON / render.Render ←─┘
//
// Errors follow RFC 7807 Problem Details:
//
//	{
//	    "type": "/errors/license/not-found",
//	    "title": "License Not Found",
//	    "status": 404,
//	    "detail": "No license file is installed on this machine.",
//	    "instance": "/api/license/info"
//	}
//
// Handlers are tested with httptest against real verifiers over signed
// artifacts in temporary directories, not mocks, so the response shapes
// in the tests are the shapes a deployment serves.
package http
