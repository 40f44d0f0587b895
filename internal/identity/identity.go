// Package identity resolves who is calling the custody API.
//
// It provides:
//   - CallerTokenIssuer: issues and verifies HS256 JWT caller tokens whose
//     subject is the caller identity
//   - RequireCaller: Gin middleware that rejects requests without a
//     caller identity and injects it into the context
//   - CallerFromCtx: reads the injected identity in handlers
package identity
