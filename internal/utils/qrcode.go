package utils

import (
    "fmt"

    qrcode "github.com/skip2/go-qrcode"
)

// QRRenderer turns a string into a PNG QR code.  The output depends only on
// the input and the renderer fields, so rendering the same URL twice yields
// identical bytes.  go-qrcode always adds the standard four-module quiet zone.
type QRRenderer struct {
    Level        qrcode.RecoveryLevel
    ModulePixels int // edge length of one module in pixels
}

// DefaultQRRenderer uses low error correction and 10px modules.
var DefaultQRRenderer = QRRenderer{Level: qrcode.Low, ModulePixels: 10}

// Render encodes content as a PNG image.
func (r QRRenderer) Render(content string) ([]byte, error) {
    if r.ModulePixels <= 0 {
        return nil, fmt.Errorf("qr: module size must be positive, got %d", r.ModulePixels)
    }
    q, err := qrcode.New(content, r.Level)
    if err != nil {
        return nil, fmt.Errorf("qr: encode: %w", err)
    }
    // A negative size asks for a fixed number of pixels per module.
    png, err := q.PNG(-r.ModulePixels)
    if err != nil {
        return nil, fmt.Errorf("qr: png: %w", err)
    }
    return png, nil
}
