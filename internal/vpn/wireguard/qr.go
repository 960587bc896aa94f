package wireguard

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultQRSize — сторона PNG в пикселях.
const DefaultQRSize = 512

// QRCodePNG кодирует конфиг клиента в PNG для сканирования мобильным клиентом.
func QRCodePNG(config string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(config, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
