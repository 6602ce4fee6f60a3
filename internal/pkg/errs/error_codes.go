/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRequestEntityTooLarge indicates that the request body size exceeded the server limit.
	ErrRequestEntityTooLarge = 1006

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007

	// ErrRouteNotFound indicates that no handler is registered for the requested path.
	ErrRouteNotFound = 1008
)

// 2xxx: Ride, Membership and Chat Errors
const (
	// ErrRideNotFound indicates that the referenced ride does not exist.
	ErrRideNotFound = 2101

	// ErrOrganizerCannotJoin indicates that the organizer tried to join their own ride.
	ErrOrganizerCannotJoin = 2102

	// ErrAlreadyMember indicates that the user is already confirmed or pending on the ride.
	ErrAlreadyMember = 2103

	// ErrRideFull indicates that the ride is at capacity and has no waitlist.
	ErrRideFull = 2104

	// ErrNotRideMember indicates that the caller is neither organizer nor confirmed participant.
	ErrNotRideMember = 2105

	// ErrMessageContentTooLong indicates that the message content exceeded the maximum length limit.
	ErrMessageContentTooLong = 2201

	// ErrMessageContentEmpty indicates that the message content was blank.
	ErrMessageContentEmpty = 2202

	// ErrMessageTypeInvalid indicates an unknown or client-forbidden message type.
	ErrMessageTypeInvalid = 2203

	// ErrMessageSendFailed indicates that a chat message could not be persisted.
	ErrMessageSendFailed = 2204

	// ErrUnknownEvent indicates that a realtime client sent an unsupported event.
	ErrUnknownEvent = 2301

	// ErrInvalidEventPayload indicates that a realtime event payload could not be decoded.
	ErrInvalidEventPayload = 2302
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrAuthRequired indicates that no bearer token was supplied.
	ErrAuthRequired = 3001

	// ErrTokenInvalid indicates a malformed token or a bad signature.
	ErrTokenInvalid = 3002

	// ErrTokenExpired indicates a token whose expiry has passed.
	ErrTokenExpired = 3003

	// ErrStaleCredential indicates a valid token whose user no longer exists.
	ErrStaleCredential = 3004

	// ErrInvalidCredentials indicates an unknown email or a wrong password.
	ErrInvalidCredentials = 3005

	// ErrEmailTaken indicates that registration used an email already present.
	ErrEmailTaken = 3006

	// ErrUserNotFound indicates that the referenced user does not exist.
	ErrUserNotFound = 3007

	// ErrStorageUnavailable indicates that object storage is not configured.
	ErrStorageUnavailable = 3101

	// ErrFileSizeTooLarge indicates that an upload exceeds the size limit.
	ErrFileSizeTooLarge = 3102

	// ErrFileTypeInvalid indicates that an upload has a disallowed MIME type or extension.
	ErrFileTypeInvalid = 3103
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrFileStorageFailed indicates that the object storage backend returned an error.
	ErrFileStorageFailed = 5001
)
