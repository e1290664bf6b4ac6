package utils

import (
	"crypto/rand"
	"math/big"
)

// Алфавит без похожих символов (0/O, 1/I/L), чтобы код легко диктовался.
const roomCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const roomCodeLength = 6

// GenerateRoomCode возвращает короткий код комнаты для шаринга.
// Уникальность обеспечивает БД, тут только энтропия.
func GenerateRoomCode() string {
	buf := make([]byte, roomCodeLength)
	max := big.NewInt(int64(len(roomCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand на поддерживаемых платформах не падает.
			panic(err)
		}
		buf[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(buf)
}
