package model

// Profile is the subset of the identity provider's userinfo document that the
// application keeps in the browser session after a successful login.
type Profile struct {
    UserID  string `json:"user_id"` // userinfo "sub"
    Name    string `json:"name"`
    Picture string `json:"picture,omitempty"`
}
