package authapi

import "dealergate/pkg/openapi"

func str() map[string]any { return map[string]any{"type": "string"} }

func object(required []string, props map[string]any) map[string]any {
	return map[string]any{"type": "object", "required": required, "properties": props}
}

// apiDoc describes the /v1 surface.
func apiDoc() *openapi.Registry {
	r := openapi.NewRegistry()
	r.Register(openapi.Operation{
		Method: "POST", Path: "/v1/auth/sign-in", Tags: []string{"auth"}, Public: true,
		Summary:     "Sign in with username and password; sets the session cookie",
		RequestBody: object([]string{"username", "password"}, map[string]any{"username": str(), "password": str()}),
		Responses:   map[string]string{"200": "Session", "400": "Missing username or password", "401": "Invalid credentials"},
	})
	r.Register(openapi.Operation{
		Method: "POST", Path: "/v1/auth/sign-up/dealership", Tags: []string{"auth"}, Public: true,
		Summary: "Register a dealership in pending state and its administrator",
		RequestBody: object([]string{"username", "password", "dealership_name"}, map[string]any{
			"username": str(), "password": str(), "phone": str(), "dealership_name": str(),
		}),
		Responses: map[string]string{
			"201": "Dealership, administrator and session",
			"400": "Invalid input",
			"409": "Username taken",
			"422": "Password too weak",
			"500": "Registration failed and was rolled back",
		},
	})
	r.Register(openapi.Operation{
		Method: "POST", Path: "/v1/auth/sign-up/staff", Tags: []string{"auth"}, Public: true,
		Summary: "Join an active dealership by code; the profile starts pending",
		RequestBody: object([]string{"code", "username", "password"}, map[string]any{
			"code": str(), "username": str(), "password": str(), "phone": str(),
		}),
		Responses: map[string]string{
			"201": "Staff identity and pending profile",
			"400": "Invalid input",
			"409": "Username taken",
			"422": "Unknown or inactive dealership, or password too weak",
		},
	})
	r.Register(openapi.Operation{
		Method: "POST", Path: "/v1/auth/sign-out", Tags: []string{"auth"}, Public: true,
		Summary:   "Clear the session cookie",
		Responses: map[string]string{"204": "Signed out"},
	})
	r.Register(openapi.Operation{
		Method: "GET", Path: "/v1/session", Tags: []string{"session"}, Public: true,
		Summary:   "Resolved identity, profile and dealership of the caller",
		Responses: map[string]string{"200": "Session snapshot"},
	})
	r.Register(openapi.Operation{
		Method: "POST", Path: "/v1/session/refresh", Tags: []string{"session"},
		Summary:   "Re-read the profile and dealership, bypassing the cache",
		Responses: map[string]string{"200": "Session snapshot", "401": "Not signed in"},
	})
	r.Register(openapi.Operation{
		Method: "GET", Path: "/v1/guard/decision", Tags: []string{"guard"}, Public: true,
		Summary:   "Authorization decision for a screen path (query: path, area)",
		Responses: map[string]string{"200": "Decision", "400": "Invalid path or area"},
	})
	return r
}
