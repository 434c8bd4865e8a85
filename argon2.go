package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
)

// argon2id parameters, fixed for every digest this process writes. Verification
// reads the parameters back from the digest, so they can be raised later
// without invalidating stored credentials.
const (
	argon2Algorithm   = "argon2id"
	argon2Memory      = 64 * 1024
	argon2Time        = 1
	argon2Parallelism = 4
	argon2SaltLength  = 16
	argon2KeyLength   = 32
)

// HashPassword generates a salted argon2id digest in PHC string format.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	salt := make([]byte, argon2SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate password salt")
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Algorithm,
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// ComparePasswordAndHash validates the given cleartext password against a
// stored digest. A mismatch returns ErrInvalidCredentials; only an unparseable
// digest produces a different error. The comparison is constant-time.
func ComparePasswordAndHash(password, hash string) error {
	parsed, err := parseDigest(hash)
	if err != nil {
		return err
	}

	computed := argon2.IDKey(
		[]byte(password),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		uint32(len(parsed.hash)),
	)

	if subtle.ConstantTimeCompare(computed, parsed.hash) != 1 {
		return ErrInvalidCredentials
	}

	return nil
}

// RandomPasswordHash is a throwaway placeholder digest for records created
// without a password.
func RandomPasswordHash() string {
	h, err := HashPassword(uuid.New().String())
	if err != nil {
		return RandomPasswordHash()
	}
	return h
}

type parsedDigest struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func parseDigest(encoded string) (*parsedDigest, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != argon2Algorithm {
		return nil, malformedDigest("unsupported digest format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, malformedDigest("unsupported argon2 version")
	}

	var memory, timeCost uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &parallelism); err != nil {
		return nil, malformedDigest("invalid digest parameters")
	}
	if memory == 0 || timeCost == 0 || parallelism == 0 {
		return nil, malformedDigest("invalid digest parameters")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return nil, malformedDigest("invalid salt encoding")
	}

	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return nil, malformedDigest("invalid hash encoding")
	}

	return &parsedDigest{
		memory:      memory,
		time:        timeCost,
		parallelism: parallelism,
		salt:        salt,
		hash:        hash,
	}, nil
}

func malformedDigest(reason string) error {
	return goerrors.New(ErrMalformedDigest.Message, ErrMalformedDigest.Category).
		WithTextCode(ErrMalformedDigest.TextCode).
		WithMetadata(map[string]any{"reason": reason})
}
