package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the claims carried by a CycleConnect access token.
type Payload struct {
	// StandardClaims carries exp, iat and iss. Expiry is checked by the parser.
	jwt.StandardClaims

	// ID is the identifier of the user the token was issued to.
	ID string `json:"id"`
}
