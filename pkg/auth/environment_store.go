package auth

import (
	"os"
	"time"
)

const (
	envClientID    = "CLIPHARVEST_CLIENT_ID"
	envAccessToken = "CLIPHARVEST_ACCESS_TOKEN"
)

// EnvironmentStore reads credentials from environment variables. It is
// read-only and answers for any profile.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve gets credentials from environment variables
func (e *EnvironmentStore) Retrieve(profile string) (*Account, error) {
	clientID := os.Getenv(envClientID)
	token := os.Getenv(envAccessToken)
	if clientID == "" || token == "" {
		return nil, ErrCredentialsNotFound
	}

	if profile == "" {
		profile = DefaultProfile
	}
	return &Account{
		Profile:      profile,
		ClientID:     clientID,
		AccessToken:  token,
		LastModified: time.Time{},
	}, nil
}

// List returns a single account if the variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(profile string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(profile string) bool {
	return os.Getenv(envClientID) != "" && os.Getenv(envAccessToken) != ""
}
