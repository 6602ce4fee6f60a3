/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses and internal error handling.
*/
package errs

import "net/http"

// Error kinds reported to clients alongside the numeric code.
const (
	KindValidation     = "ValidationError"
	KindAuthentication = "AuthenticationError"
	KindNotFound       = "NotFoundError"
	KindConflict       = "ConflictError"
	KindCapacity       = "CapacityError"
	KindRateLimit      = "RateLimitError"
	KindServer         = "ServerError"
)

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message, kind and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:         {Code: ErrInvalidParams, Kind: KindValidation, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType:  {Code: ErrUnsupportedMediaType, Kind: KindValidation, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:     {Code: ErrInvalidJSONFormat, Kind: KindValidation, Message: "Malformed JSON body.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:    {Code: ErrExtraContentInBody, Kind: KindValidation, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRequestEntityTooLarge: {Code: ErrRequestEntityTooLarge, Kind: KindValidation, Message: "Request size is too large.", Status: http.StatusRequestEntityTooLarge},
	ErrRateLimitExceeded:     {Code: ErrRateLimitExceeded, Kind: KindRateLimit, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrRouteNotFound:         {Code: ErrRouteNotFound, Kind: KindNotFound, Message: "Route not found.", Status: http.StatusNotFound},

	// 2xxx: Ride, Membership and Chat Errors
	ErrRideNotFound:          {Code: ErrRideNotFound, Kind: KindNotFound, Message: "Ride not found.", Status: http.StatusNotFound},
	ErrOrganizerCannotJoin:   {Code: ErrOrganizerCannotJoin, Kind: KindConflict, Message: "Organizer cannot join their own ride.", Status: http.StatusBadRequest},
	ErrAlreadyMember:         {Code: ErrAlreadyMember, Kind: KindConflict, Message: "Already joined this ride.", Status: http.StatusBadRequest},
	ErrRideFull:              {Code: ErrRideFull, Kind: KindCapacity, Message: "Ride is full.", Status: http.StatusBadRequest},
	ErrNotRideMember:         {Code: ErrNotRideMember, Kind: KindAuthentication, Message: "Join this ride to access the chat.", Status: http.StatusForbidden},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Kind: KindValidation, Message: "Message is too long (max %d characters).", Status: http.StatusBadRequest},
	ErrMessageContentEmpty:   {Code: ErrMessageContentEmpty, Kind: KindValidation, Message: "Message content is required.", Status: http.StatusBadRequest},
	ErrMessageTypeInvalid:    {Code: ErrMessageTypeInvalid, Kind: KindValidation, Message: "Invalid message type.", Status: http.StatusBadRequest},
	ErrMessageSendFailed:     {Code: ErrMessageSendFailed, Kind: KindServer, Message: "Failed to send message", Status: http.StatusInternalServerError},
	ErrUnknownEvent:          {Code: ErrUnknownEvent, Kind: KindValidation, Message: "Unsupported event %q.", Status: http.StatusBadRequest},
	ErrInvalidEventPayload:   {Code: ErrInvalidEventPayload, Kind: KindValidation, Message: "Invalid payload for event %q.", Status: http.StatusBadRequest},

	// 3xxx: User, Session, and Security Errors
	ErrAuthRequired:       {Code: ErrAuthRequired, Kind: KindAuthentication, Message: "Authentication required.", Status: http.StatusUnauthorized},
	ErrTokenInvalid:       {Code: ErrTokenInvalid, Kind: KindAuthentication, Message: "Invalid token.", Status: http.StatusForbidden},
	ErrTokenExpired:       {Code: ErrTokenExpired, Kind: KindAuthentication, Message: "Your session has expired. Please log in again.", Status: http.StatusUnauthorized},
	ErrStaleCredential:    {Code: ErrStaleCredential, Kind: KindAuthentication, Message: "The user associated with this token no longer exists.", Status: http.StatusForbidden},
	ErrInvalidCredentials: {Code: ErrInvalidCredentials, Kind: KindAuthentication, Message: "Invalid credentials.", Status: http.StatusUnauthorized},
	ErrEmailTaken:         {Code: ErrEmailTaken, Kind: KindConflict, Message: "User already exists.", Status: http.StatusBadRequest},
	ErrUserNotFound:       {Code: ErrUserNotFound, Kind: KindNotFound, Message: "User not found.", Status: http.StatusNotFound},
	ErrStorageUnavailable: {Code: ErrStorageUnavailable, Kind: KindServer, Message: "File uploads are not available.", Status: http.StatusServiceUnavailable},
	ErrFileSizeTooLarge:   {Code: ErrFileSizeTooLarge, Kind: KindValidation, Message: "File is too large.", Status: http.StatusBadRequest},
	ErrFileTypeInvalid:    {Code: ErrFileTypeInvalid, Kind: KindValidation, Message: "Unsupported file type.", Status: http.StatusBadRequest},

	// 5xxx: Internal System Errors
	ErrUnknown:           {Code: ErrUnknown, Kind: KindServer, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrFileStorageFailed: {Code: ErrFileStorageFailed, Kind: KindServer, Message: "File upload failed. Please try again.", Status: http.StatusBadGateway},
}
