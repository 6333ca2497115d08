package games

import (
	"crypto/hmac"
	"crypto/sha256"
	"strconv"
)

// byteStream yields an endless deterministic byte sequence: successive
// HMAC-SHA256 rounds keyed by serverSeed over "clientSeed:nonce:round".
type byteStream struct {
	serverSeed string
	clientSeed string
	nonce      uint64

	round  int
	offset int
	buffer [sha256.Size]byte
}

func newByteStream(serverSeed, clientSeed string, nonce uint64, cursor int) *byteStream {
	s := &byteStream{
		serverSeed: serverSeed,
		clientSeed: clientSeed,
		nonce:      nonce,
		round:      cursor / sha256.Size,
		offset:     cursor % sha256.Size,
	}
	s.fill()
	return s
}

func (s *byteStream) fill() {
	h := hmac.New(sha256.New, []byte(s.serverSeed))
	h.Write([]byte(s.clientSeed + ":" + strconv.FormatUint(s.nonce, 10) + ":" + strconv.Itoa(s.round)))
	copy(s.buffer[:], h.Sum(nil))
}

func (s *byteStream) next() byte {
	if s.offset == len(s.buffer) {
		s.round++
		s.offset = 0
		s.fill()
	}
	b := s.buffer[s.offset]
	s.offset++
	return b
}

// float returns a value in [0, 1) built from the next four bytes.
func (s *byteStream) float() float64 {
	f, scale := 0.0, 1.0
	for range 4 {
		scale /= 256
		f += float64(s.next()) * scale
	}
	return f
}

// Floats returns n floats in [0, 1) drawn from the stream identified by the
// seeds and nonce, starting cursor bytes in. The same arguments always give
// the same floats.
func Floats(serverSeed, clientSeed string, nonce uint64, cursor, n int) []float64 {
	s := newByteStream(serverSeed, clientSeed, nonce, cursor)
	out := make([]float64, n)
	for i := range out {
		out[i] = s.float()
	}
	return out
}
