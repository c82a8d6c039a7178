// Package config loads the account registry that binds WhatsApp phone number
// IDs to tenant accounts.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Account binds one WhatsApp Business phone number to a tenant.
type Account struct {
	AccountID     string `yaml:"account_id"      validate:"required"`
	UserID        string `yaml:"user_id"         validate:"required"`
	PhoneNumberID string `yaml:"phone_number_id" validate:"required"`
	AccessToken   string `yaml:"access_token"    validate:"required"`
}

// Registry resolves accounts from provider callbacks by phone number ID.
type Registry struct {
	accounts map[string]Account
}

type registryFile struct {
	Accounts []Account `yaml:"accounts" validate:"required,min=1,dive"`
}

// LoadRegistry reads and validates the accounts YAML file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	return ParseRegistry(data)
}

// ParseRegistry parses the accounts YAML from memory.
func ParseRegistry(data []byte) (*Registry, error) {
	var file registryFile

	err := yaml.Unmarshal(data, &file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse accounts file: %w", err)
	}

	err = validator.New().Struct(&file)
	if err != nil {
		return nil, fmt.Errorf("invalid accounts file: %w", err)
	}

	accounts := make(map[string]Account, len(file.Accounts))

	for _, account := range file.Accounts {
		if _, exists := accounts[account.PhoneNumberID]; exists {
			return nil, fmt.Errorf("duplicate phone_number_id %s in accounts file", account.PhoneNumberID)
		}

		accounts[account.PhoneNumberID] = account
	}

	return &Registry{accounts: accounts}, nil
}

// ByPhoneNumberID returns the account bound to a phone number ID.
func (r *Registry) ByPhoneNumberID(phoneNumberID string) (Account, bool) {
	account, ok := r.accounts[phoneNumberID]

	return account, ok
}

// UserForAccount returns the user owning an account id, if registered.
func (r *Registry) UserForAccount(accountID string) (string, bool) {
	for _, account := range r.accounts {
		if account.AccountID == accountID {
			return account.UserID, true
		}
	}

	return "", false
}

// Accounts returns all registered accounts.
func (r *Registry) Accounts() []Account {
	accounts := make([]Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		accounts = append(accounts, account)
	}

	return accounts
}
