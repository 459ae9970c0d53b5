package transfer

import "github.com/golang-jwt/jwt/v5"

// OrganizationClaims binds a request to one organization and its
// scheduling timezone.
type OrganizationClaims struct {
	OrganizationID string `json:"organization_id"`
	Timezone       string `json:"timezone,omitempty"`
	jwt.RegisteredClaims
}
