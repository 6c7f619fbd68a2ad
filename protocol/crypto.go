package protocol

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/sha256"
	"fmt"
)

// ecbKey is the fixed AES-128 key used to encrypt/decrypt the inner
// application packet body. It is a protocol-wide constant, not per-device.
var ecbKey = []byte{
	0xc5, 0x75, 0x11, 0x5f, 0x1d, 0x7c, 0x43, 0x51,
	0x98, 0x87, 0x6a, 0x64, 0x34, 0x11, 0x7a, 0x86,
}

// md5Salt is appended to every inner packet before computing its integrity
// tag. 32 bytes, fixed.
var md5Salt = []byte{
	0xa3, 0x24, 0xac, 0x3e, 0x19, 0x8a, 0x10, 0x52, 0x76, 0xbc, 0xec, 0x8a, 0x4e, 0xc9, 0xa7, 0x58,
	0x90, 0x97, 0x41, 0xe1, 0x14, 0x06, 0x7d, 0x70, 0x8b, 0x49, 0x16, 0x56, 0x0c, 0x55, 0x9e, 0x51,
}

var zeroIV = make([]byte, 16)

// ErrBadPadding is returned by DecryptECB when the trailing PKCS#7 pad is
// not well formed. It is a recoverable parse error at this layer; callers
// that require strict integrity should treat it as one.
var ErrBadPadding = fmt.Errorf("protocol: invalid pkcs7 padding")

// pkcs7Pad pads plain to a multiple of blockSize using PKCS#7.
func pkcs7Pad(plain []byte, blockSize int) []byte {
	padLen := blockSize - len(plain)%blockSize
	padded := make([]byte, len(plain)+padLen)
	copy(padded, plain)
	for i := len(plain); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// pkcs7Unpad strips a PKCS#7 pad, returning ErrBadPadding if it is malformed.
func pkcs7Unpad(padded []byte) ([]byte, error) {
	n := len(padded)
	if n == 0 {
		return nil, ErrBadPadding
	}
	padLen := int(padded[n-1])
	if padLen < 1 || padLen > 16 || padLen > n {
		return nil, ErrBadPadding
	}
	for _, b := range padded[n-padLen:] {
		if int(b) != padLen {
			return nil, ErrBadPadding
		}
	}
	return padded[:n-padLen], nil
}

// EncryptECB PKCS#7-pads plain and encrypts it under the fixed protocol
// key with AES-128 in ECB mode.
func EncryptECB(plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(ecbKey)
	if err != nil {
		return nil, fmt.Errorf("protocol: ecb cipher init: %w", err)
	}
	padded := pkcs7Pad(plain, block.BlockSize())
	out := make([]byte, len(padded))
	for off := 0; off < len(padded); off += block.BlockSize() {
		block.Encrypt(out[off:off+block.BlockSize()], padded[off:off+block.BlockSize()])
	}
	return out, nil
}

// DecryptECB decrypts cipher under the fixed protocol key with AES-128 in
// ECB mode and strips the PKCS#7 pad. Returns ErrBadPadding (not a fatal
// error) if the pad is malformed; see open questions in the design notes.
func DecryptECB(cipherText []byte) ([]byte, error) {
	block, err := aes.NewCipher(ecbKey)
	if err != nil {
		return nil, fmt.Errorf("protocol: ecb cipher init: %w", err)
	}
	bs := block.BlockSize()
	if len(cipherText) == 0 || len(cipherText)%bs != 0 {
		return nil, fmt.Errorf("protocol: ecb ciphertext length %d not a multiple of %d", len(cipherText), bs)
	}
	plain := make([]byte, len(cipherText))
	for off := 0; off < len(cipherText); off += bs {
		block.Decrypt(plain[off:off+bs], cipherText[off:off+bs])
	}
	return pkcs7Unpad(plain)
}

// EncryptCBC encrypts plain under key with AES-128-CBC and a zero IV.
// plain MUST already be a multiple of the block size; the protocol never
// pads this path (see design notes) and this function asserts the
// precondition rather than silently padding.
func EncryptCBC(plain, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("protocol: cbc cipher init: %w", err)
	}
	if len(plain)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("protocol: cbc plaintext length %d not a multiple of block size %d", len(plain), block.BlockSize())
	}
	out := make([]byte, len(plain))
	mode := cipher.NewCBCEncrypter(block, zeroIV)
	mode.CryptBlocks(out, plain)
	return out, nil
}

// DecryptCBC decrypts cipherText under key with AES-128-CBC and a zero IV.
func DecryptCBC(cipherText, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("protocol: cbc cipher init: %w", err)
	}
	if len(cipherText)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("protocol: cbc ciphertext length %d not a multiple of block size %d", len(cipherText), block.BlockSize())
	}
	out := make([]byte, len(cipherText))
	mode := cipher.NewCBCDecrypter(block, zeroIV)
	mode.CryptBlocks(out, cipherText)
	return out, nil
}

// MD5Tag computes the 16-byte integrity tag MD5(data || salt).
func MD5Tag(data []byte) []byte {
	h := md5.New()
	h.Write(data)
	h.Write(md5Salt)
	sum := h.Sum(nil)
	return sum
}

// CheckMD5Tag reports whether tag is the correct MD5Tag(data).
func CheckMD5Tag(data, tag []byte) bool {
	return bytes.Equal(MD5Tag(data), tag)
}

// SHA256 is a thin wrapper kept for call-site symmetry with MD5Tag.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// ChecksumSum8 computes the 8-bit checksum used by appliance messages:
// (~sum(bytes) + 1) & 0xFF.
func ChecksumSum8(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return byte(^sum + 1)
}

// BufferXOR XORs a and b byte-wise over their shared length.
func BufferXOR(a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = a[i] ^ b[i]
	}
	return out
}
