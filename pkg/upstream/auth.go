package upstream

import (
	"errors"
	"net/http"
)

// DefaultTokenHeader is the header carrying an admin access token.
const DefaultTokenHeader = "X-Shopify-Access-Token"

// Authorizer attaches credentials to an outgoing request.
//
// The client treats it as an opaque capability and never reads back what
// it sets.
type Authorizer interface {
	Authorize(req *http.Request) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(req *http.Request) error

// Authorize implements Authorizer.
func (f AuthorizerFunc) Authorize(req *http.Request) error {
	return f(req)
}

// TokenAuthorizer sets a static access token header.
type TokenAuthorizer struct {
	// Header defaults to DefaultTokenHeader.
	Header string
	Token  string
}

// Authorize implements Authorizer.
func (a TokenAuthorizer) Authorize(req *http.Request) error {
	if a.Token == "" {
		return errors.New("access token is empty")
	}
	header := a.Header
	if header == "" {
		header = DefaultTokenHeader
	}
	req.Header.Set(header, a.Token)
	return nil
}
