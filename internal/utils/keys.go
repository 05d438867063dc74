package utils

import (
    "crypto/sha256"
    "io"

    "golang.org/x/crypto/hkdf"
)

// Purposes for DeriveKey.  Each signed artifact gets its own key so a token
// minted for one purpose never verifies as another.
const (
    PurposeSession = "vat-ticketing/session"
    PurposeState   = "vat-ticketing/oauth-state"
)

// DeriveKey expands the application secret into a 32-byte HMAC key bound to
// purpose.
func DeriveKey(secret, purpose string) []byte {
    r := hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose))
    key := make([]byte, 32)
    if _, err := io.ReadFull(r, key); err != nil {
        // hkdf only fails after 255*32 bytes of output.
        panic(err)
    }
    return key
}
