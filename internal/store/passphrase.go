package store

import (
	"context"
	"crypto/hkdf"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/soupstore/internal/fault"
)

const (
	saltKey     = "salt"
	verifierKey = "verifier"

	storeKeyInfo = "soupstore store key"
	verifierMsg  = "soupstore passphrase verifier"
)

// unlock derives the store key from passphrase and checks it against the
// verifier in store_info, writing salt and verifier on first open.
func unlock(ctx context.Context, db *sql.DB, passphrase string) ([]byte, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("unlock: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	salt, err := readInfo(ctx, tx, saltKey)
	if err != nil {
		return nil, err
	}
	stored, err := readInfo(ctx, tx, verifierKey)
	if err != nil {
		return nil, err
	}

	if salt == nil {
		salt = make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("unlock: generate salt: %w", err)
		}
	}

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	verifier := computeVerifier(key)

	if stored != nil {
		if !hmac.Equal(stored, verifier) {
			return nil, fault.ErrAuthentication
		}
		return key, nil
	}

	for k, v := range map[string][]byte{saltKey: salt, verifierKey: verifier} {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO store_info (key, value) VALUES (?, ?)", k, v); err != nil {
			return nil, fmt.Errorf("unlock: write %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("unlock: commit: %w", err)
	}
	return key, nil
}

func readInfo(ctx context.Context, tx *sql.Tx, key string) ([]byte, error) {
	var v []byte
	err := tx.QueryRowContext(ctx, "SELECT value FROM store_info WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unlock: read %s: %w", key, err)
	}
	return v, nil
}

func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	key, err := hkdf.Key(sha256.New, []byte(passphrase), salt, storeKeyInfo, 32)
	if err != nil {
		return nil, fmt.Errorf("unlock: derive key: %w", err)
	}
	return key, nil
}

func computeVerifier(key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(verifierMsg))
	return mac.Sum(nil)
}
