package vault

/*
Файл vault.go реализует CredentialVault — envelope-шифрование админ-ключей
tenant-приложений. Ключ шифрования выводится из мастер-ключа платформы через
HKDF с фиксированной purpose-строкой, поэтому шифртексты других подсистем
(другой purpose) здесь принципиально не расшифровываются.
*/

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// PurposeAdminKey — контекст для ключей админ-поверхностей.
// Менять только вместе с миграцией существующих шифртекстов.
const PurposeAdminKey = "AppAdminSurface.AdminKey.v1"

// ErrDecryption — шифртекст поврежден или создан под другим purpose/ключом.
// Наверху это всегда InvalidConfiguration, никогда не "пустой ключ".
var ErrDecryption = errors.New("vault: decryption failed")

// Vault — абстракция над конкретным крипто-бэкендом.
type Vault interface {
	Protect(plaintext []byte) ([]byte, error)
	Unprotect(ciphertext []byte) ([]byte, error)
}

// AEADVault — реализация на XChaCha20-Poly1305.
// Формат шифртекста: nonce (24 байта) || sealed.
type AEADVault struct {
	aead cipher.AEAD
}

// New выводит purpose-ключ из мастер-ключа и собирает AEAD.
// Мастер-ключ — минимум 32 байта случайности (из ENV или файла).
func New(masterKey []byte, purpose string) (*AEADVault, error) {
	if len(masterKey) < chacha20poly1305.KeySize {
		return nil, fmt.Errorf("vault: master key too short: need %d bytes, got %d",
			chacha20poly1305.KeySize, len(masterKey))
	}

	// HKDF: один мастер-ключ -> независимые ключи на каждый purpose
	kdf := hkdf.New(sha256.New, masterKey, nil, []byte(purpose))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("vault: key derivation failed: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("vault: cipher init failed: %w", err)
	}

	return &AEADVault{aead: aead}, nil
}

func (v *AEADVault) Protect(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: nonce generation failed: %w", err)
	}

	// Nonce кладем префиксом — он нужен для расшифровки
	return v.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (v *AEADVault) Unprotect(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < chacha20poly1305.NonceSizeX {
		return nil, ErrDecryption
	}

	nonce := ciphertext[:chacha20poly1305.NonceSizeX]
	sealed := ciphertext[chacha20poly1305.NonceSizeX:]

	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		// Детали ошибки AEAD наружу не отдаем — только факт отказа
		return nil, ErrDecryption
	}
	return plaintext, nil
}
