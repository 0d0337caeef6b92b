// ABOUTME: Request context key types and constants for the api package.
// ABOUTME: Used by middleware to inject auth state and by handlers to read it.
package api

type contextKey int

const (
	ctxUserID contextKey = iota // uuid.UUID — authenticated user
	ctxOrgID                    // uuid.UUID — org from URL path param
	ctxRole                     // rbac.Role — the user's role in that org
)
