// Package creds reads and writes encrypted API credential files so keys
// never sit on disk in the clear. The file is AES-256-GCM sealed with a
// key derived from a passphrase via scrypt.
package creds

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/crypto/scrypt"
)

// Credentials API 凭证明文结构。
type Credentials struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

const saltSize = 16

// scrypt 参数固定写进格式：文件不带参数头，改参数就是改格式版本。
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, errors.Wrap(err, "derive key")
	}
	return key, nil
}

// Seal 加密凭证并写入 path。文件布局：salt ‖ nonce ‖ ciphertext。
func Seal(path string, c Credentials, passphrase string) error {
	plain, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal credentials")
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return errors.Wrap(err, "generate salt")
	}
	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return errors.Wrap(err, "init cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return errors.Wrap(err, "init gcm")
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return errors.Wrap(err, "generate nonce")
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plain)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plain, nil)
	return errors.Wrap(os.WriteFile(path, out, 0o600), "write credentials file")
}

// Open 读取并解密 path 中的凭证。口令错误或文件被改动都会在
// GCM 校验处失败。
func Open(path, passphrase string) (Credentials, error) {
	var c Credentials
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, errors.Wrap(err, "read credentials file")
	}
	if len(raw) < saltSize {
		return c, errors.New("credentials file truncated")
	}
	salt, rest := raw[:saltSize], raw[saltSize:]

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return c, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return c, errors.Wrap(err, "init cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return c, errors.Wrap(err, "init gcm")
	}
	if len(rest) < gcm.NonceSize() {
		return c, errors.New("credentials file truncated")
	}
	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return c, errors.Wrap(err, "decrypt credentials")
	}
	if err := json.Unmarshal(plain, &c); err != nil {
		return c, errors.Wrap(err, "unmarshal credentials")
	}
	return c, nil
}
