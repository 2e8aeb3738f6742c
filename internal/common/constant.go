package common

const (
	// AuthorizationHeaderName is the HTTP header carrying "Bearer <token>".
	AuthorizationHeaderName = "Authorization"

	// BearerScheme is the only accepted authorization scheme.
	BearerScheme = "Bearer"

	// DefaultUserRole is assigned to self-registered users.
	DefaultUserRole = "user"
)
