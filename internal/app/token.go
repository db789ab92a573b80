package app

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// generateToken produces an unguessable TXT proof value for product.
// Isolated here so the token format can evolve independently.
func generateToken(product string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-verification=%s", product, strings.ReplaceAll(id.String(), "-", "")), nil
}

// generateID produces the identifier of a new record generation.
func generateID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
