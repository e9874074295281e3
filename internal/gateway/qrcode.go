package gateway

import (
	"github.com/go-faster/errors"
	qrcode "github.com/skip2/go-qrcode"
)

// QRCode renders url as a PNG for chats where links are awkward to tap.
func QRCode(url string, size int) ([]byte, error) {
	if url == "" {
		return nil, errors.New("empty pay url")
	}
	png, err := qrcode.Encode(url, qrcode.Medium, size)
	if err != nil {
		return nil, errors.Wrap(err, "encode qr")
	}
	return png, nil
}
